package session

import (
	"fmt"
	"strings"

	"github.com/Naser58164/praxis-medius/internal/domain"

	"go.uber.org/zap"
)

// DefaultMood patientSpeak 未给情绪时使用
const DefaultMood = "neutral"

// MaxSpeechLength 单次病人说话的字符上限
const MaxSpeechLength = 2000

func (s *Session) checkMutable() error {
	if s.status == domain.StatusCompleted {
		return fmt.Errorf("%w: session is completed", domain.ErrSimulationNotActive)
	}
	return nil
}

// UpdateVitals 覆盖 patch 中给出的字段并钳制，广播完整体征
func (s *Session) UpdateVitals(patch domain.VitalsPatch) (domain.Vitals, error) {
	if err := patch.Validate(); err != nil {
		return domain.Vitals{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutable(); err != nil {
		return domain.Vitals{}, err
	}
	s.vitals = s.vitals.Merge(patch)
	s.recordVitals()
	s.emit(domain.EventVitalsUpdate, domain.VitalsUpdateData{Vitals: s.vitals})
	return s.vitals, nil
}

// ApplyVitalsDelta 把 delta 累加到当前体征并钳制
func (s *Session) ApplyVitalsDelta(delta domain.VitalsPatch) (domain.Vitals, error) {
	if err := delta.Validate(); err != nil {
		return domain.Vitals{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutable(); err != nil {
		return domain.Vitals{}, err
	}
	s.applyDelta(delta)
	return s.vitals, nil
}

func (s *Session) applyDelta(delta domain.VitalsPatch) {
	s.vitals = s.vitals.AddDelta(delta)
	s.recordVitals()
	s.emit(domain.EventVitalsUpdate, domain.VitalsUpdateData{Vitals: s.vitals})
}

func (s *Session) recordVitals() {
	s.vitalsHistory = append(s.vitalsHistory, domain.VitalsSample{
		Vitals:      s.vitals,
		ElapsedTime: s.elapsed,
		Timestamp:   s.now().UTC(),
	})
}

// UpdateFinding 写入发现树的一个叶子
func (s *Session) UpdateFinding(path domain.FindingPath, value any) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty finding path", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutable(); err != nil {
		return err
	}
	if !s.scenario.FindingsSchema.Allows(path) {
		return fmt.Errorf("%w: finding path %q is outside the scenario findings schema", domain.ErrValidation, path.String())
	}
	if err := s.findings.Set(path, value); err != nil {
		return err
	}
	stored, _ := s.findings.Get(path)
	s.emit(domain.EventFindingsUpdate, domain.FindingsUpdateData{Path: path, Value: stored})
	return nil
}

// RevealLab 揭示检验结果。results 为 nil 时使用场景预置的结果；
// 重复揭示覆盖结果，首次揭示时间保持不变。
func (s *Session) RevealLab(labID string, results any) (LabState, error) {
	labID = strings.TrimSpace(labID)
	if labID == "" {
		return LabState{}, fmt.Errorf("%w: labId is required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutable(); err != nil {
		return LabState{}, err
	}
	if results == nil {
		preset, ok := s.scenario.InitialLabs[labID]
		if !ok {
			return LabState{}, fmt.Errorf("%w: no results given and scenario has no lab %q", domain.ErrValidation, labID)
		}
		results = preset
	}

	now := s.now().UTC()
	lab, ok := s.labs[labID]
	if !ok {
		lab = &LabState{RevealedAt: now}
		s.labs[labID] = lab
	}
	lab.Revealed = true
	lab.Results = results
	lab.UpdatedAt = now

	s.logger.Debug("Lab revealed", zap.String("lab_id", labID))
	s.emit(domain.EventLabResultsRevealed, domain.LabRevealedData{LabID: labID, Results: results})
	return *lab, nil
}

// LabStatus 检验揭示状态
func (s *Session) LabStatus(labID string) (LabState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lab, ok := s.labs[labID]
	if !ok {
		return LabState{}, false
	}
	return *lab, true
}

// PatientSpeak 广播病人说话，不改变状态
func (s *Session) PatientSpeak(text, mood string) (domain.PatientSpeech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.PatientSpeech{}, fmt.Errorf("%w: speech text is required", domain.ErrValidation)
	}
	if len(text) > MaxSpeechLength {
		return domain.PatientSpeech{}, fmt.Errorf("%w: speech text exceeds %d characters", domain.ErrValidation, MaxSpeechLength)
	}
	if mood == "" {
		mood = DefaultMood
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutable(); err != nil {
		return domain.PatientSpeech{}, err
	}
	speech := domain.PatientSpeech{Text: text, Mood: mood}
	s.emit(domain.EventPatientSpeak, speech)
	return speech, nil
}

// RecordSensorData 记录模拟人回传数据并转发给会话成员
func (s *Session) RecordSensorData(payload map[string]any) (domain.SensorReading, error) {
	if len(payload) == 0 {
		return domain.SensorReading{}, fmt.Errorf("%w: sensor payload is empty", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutable(); err != nil {
		return domain.SensorReading{}, err
	}
	reading := domain.SensorReading{
		Payload:     payload,
		ElapsedTime: s.elapsed,
		Timestamp:   s.now().UTC(),
	}
	s.sensorData = append(s.sensorData, reading)
	s.emit(domain.EventManikinFeedback, reading)
	return reading, nil
}
