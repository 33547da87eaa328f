package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Naser58164/praxis-medius/internal/domain"
	"github.com/Naser58164/praxis-medius/internal/progression"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LabRequest requestLab 的应答
type LabRequest struct {
	Entry    domain.ActionLogEntry `json:"entry"`
	LabID    string                `json:"labId"`
	Revealed bool                  `json:"revealed"`
	Results  any                   `json:"results,omitempty"`
}

// LogAction 追加一条行为日志（仅 RUNNING），标记关键行为，然后检查进程图。
// 日志追加不可撤销；之后的进程迁移失败只记录日志，不影响已追加的条目。
func (s *Session) LogAction(in domain.ActionInput) (domain.ActionLogEntry, error) {
	in.ActionID = strings.TrimSpace(in.ActionID)
	if in.ActionID == "" {
		return domain.ActionLogEntry{}, fmt.Errorf("%w: actionId is required", domain.ErrValidation)
	}
	if in.Dimension != "" && !in.Dimension.Valid() {
		return domain.ActionLogEntry{}, fmt.Errorf("%w: unknown dimension %q", domain.ErrValidation, in.Dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.logAction(in)
}

func (s *Session) logAction(in domain.ActionInput) (domain.ActionLogEntry, error) {
	if s.status != domain.StatusRunning {
		return domain.ActionLogEntry{}, fmt.Errorf("%w: status is %s", domain.ErrSimulationNotActive, s.status)
	}

	ca, critical := s.scenario.CriticalActionFor(in.ActionID)
	if in.Dimension == "" {
		if !critical {
			return domain.ActionLogEntry{}, fmt.Errorf("%w: dimension is required for action %q", domain.ErrValidation, in.ActionID)
		}
		in.Dimension = ca.Dimension
	}
	if in.ActionLabel == "" {
		in.ActionLabel = in.ActionID
		if critical {
			in.ActionLabel = ca.Label
		}
	}

	entry := domain.ActionLogEntry{
		EntryID:           uuid.New().String(),
		ActionID:          in.ActionID,
		ActionLabel:       in.ActionLabel,
		Dimension:         in.Dimension,
		PerformedBy:       in.PerformedBy,
		Parameters:        in.Parameters,
		ElapsedTime:       s.elapsed,
		ClientElapsedTime: in.ClientElapsedTime,
		IsCriticalAction:  critical,
		Success:           true,
		Timestamp:         s.now().UTC(),
	}
	if in.Success != nil {
		entry.Success = *in.Success
	}
	if critical {
		id := ca.ID
		entry.CriticalActionID = &id
		if _, done := s.completed[ca.ID]; !done {
			s.completed[ca.ID] = struct{}{}
			s.completedOrder = append(s.completedOrder, ca.ID)
		}
	}
	s.actionLog = append(s.actionLog, entry)

	s.logger.Debug("Action logged",
		zap.String("action_id", entry.ActionID),
		zap.Bool("critical", critical),
		zap.Int("elapsed", entry.ElapsedTime),
	)
	s.emit(domain.EventActionPerformed, domain.ActionPerformedData{Entry: entry})

	s.checkProgression(entry.ActionID)
	return entry, nil
}

// checkProgression 持锁调用
func (s *Session) checkProgression(actionID string) {
	tr, err := s.auto.OnAction(actionID, progression.NewGuardEnv(s.vitals, s.elapsed, actionID))
	if err != nil {
		s.logger.Warn("Progression check failed", zap.String("action_id", actionID), zap.Error(err))
		return
	}
	if err := s.applyTransition(tr); err != nil {
		s.logger.Warn("Progression transition rejected", zap.String("action_id", actionID), zap.Error(err))
	}
}

// RequestLab 考生申请检验：记一条 request_<labId> 行为，返回当前揭示状态
func (s *Session) RequestLab(labID, performedBy string) (LabRequest, error) {
	labID = strings.TrimSpace(labID)
	if labID == "" {
		return LabRequest{}, fmt.Errorf("%w: labId is required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.logAction(domain.ActionInput{
		ActionID:    "request_" + labID,
		ActionLabel: "Request lab: " + labID,
		Dimension:   domain.DimensionTestsDiagnostics,
		PerformedBy: performedBy,
		Parameters:  map[string]any{"labId": labID},
	})
	if err != nil {
		return LabRequest{}, err
	}

	req := LabRequest{Entry: entry, LabID: labID}
	if lab, ok := s.labs[labID]; ok && lab.Revealed {
		req.Revealed = true
		req.Results = lab.Results
	}
	return req, nil
}

// AdvanceProgression 考官推进 MANUAL 节点（仅 RUNNING）
func (s *Session) AdvanceProgression() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusRunning {
		return "", fmt.Errorf("%w: status is %s", domain.ErrSimulationNotActive, s.status)
	}
	tr, err := s.auto.OnManual(progression.NewGuardEnv(s.vitals, s.elapsed, ""))
	if err != nil {
		return "", err
	}
	if tr == nil {
		return s.auto.Current(), fmt.Errorf("%w: no outcome of node %q applies", domain.ErrValidation, s.auto.Current())
	}
	if err := s.applyTransition(tr); err != nil {
		return "", err
	}
	return s.auto.Current(), nil
}

// applyTransition 持锁调用。先在副本上准备发现树修改，
// 全部可行后才提交游标并应用后果，任何一步失败都不改变状态。
func (s *Session) applyTransition(tr *progression.Transition) error {
	if tr == nil {
		return nil
	}
	c := tr.Outcome.Consequence

	paths := make([]string, 0, len(c.FindingsChange))
	for raw := range c.FindingsChange {
		paths = append(paths, raw)
	}
	sort.Strings(paths)

	var findings domain.Findings
	parsed := make([]domain.FindingPath, 0, len(paths))
	if len(paths) > 0 {
		findings = s.findings.Clone()
		for _, raw := range paths {
			p, err := domain.ParseFindingPath(raw)
			if err != nil {
				return err
			}
			if err := findings.Set(p, c.FindingsChange[raw]); err != nil {
				return fmt.Errorf("node %q consequence: %w", tr.From, err)
			}
			parsed = append(parsed, p)
		}
	}

	if err := s.auto.Advance(tr); err != nil {
		return err
	}

	if c.VitalsChange != nil && !c.VitalsChange.IsEmpty() {
		s.applyDelta(*c.VitalsChange)
	}
	if findings != nil {
		s.findings = findings
		for _, p := range parsed {
			v, _ := s.findings.Get(p)
			s.emit(domain.EventFindingsUpdate, domain.FindingsUpdateData{Path: p, Value: v})
		}
	}
	if c.PatientSpeech != nil && c.PatientSpeech.Text != "" {
		speech := *c.PatientSpeech
		if speech.Mood == "" {
			speech.Mood = DefaultMood
		}
		s.emit(domain.EventPatientSpeak, speech)
	}
	if c.IotAction != "" {
		s.emit(domain.EventManikinCommand, domain.ManikinCommandData{Action: c.IotAction, NodeID: tr.To})
	}

	s.logger.Info("Progression advanced",
		zap.String("from_node", tr.From),
		zap.String("node_id", tr.To),
		zap.String("trigger", string(tr.Trigger)),
		zap.Bool("exhausted", tr.Exhausted),
	)
	s.emit(domain.EventStateChange, domain.StateChangeData{
		FromNodeID: tr.From,
		NodeID:     tr.To,
		Exhausted:  tr.Exhausted,
		Vitals:     s.vitals,
		Trigger:    string(tr.Trigger),
	})
	return nil
}
