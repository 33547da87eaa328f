package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Naser58164/praxis-medius/internal/domain"
	"github.com/Naser58164/praxis-medius/internal/session"

	"go.uber.org/zap"
)

// Lookup 会话查找（由 registry.Registry 实现）
type Lookup interface {
	Lookup(idOrCode string) (*session.Session, error)
	GetSession(id string) (*session.Session, error)
}

type handlerFunc func(d *Dispatcher, c *Client, s *session.Session, payload json.RawMessage) (any, error)

type route struct {
	roles        []domain.Role // 为空表示任意角色
	requiresJoin bool
	handle       handlerFunc
}

func (r route) allows(role domain.Role) bool {
	if len(r.roles) == 0 {
		return true
	}
	for _, allowed := range r.roles {
		if role == allowed {
			return true
		}
	}
	return false
}

var (
	examinerOnly = []domain.Role{domain.RoleExaminer}
	examineeOnly = []domain.Role{domain.RoleExaminee}
	manikinOnly  = []domain.Role{domain.RoleManikin}
)

// Dispatcher 命令路由与授权，和具体传输无关
type Dispatcher struct {
	sessions Lookup
	rooms    *Rooms
	routes   map[string]route
	logger   *zap.Logger
}

// NewDispatcher 创建命令路由
func NewDispatcher(sessions Lookup, rooms *Rooms, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sessions: sessions,
		rooms:    rooms,
		logger:   logger,
		routes: map[string]route{
			CmdJoin:               {handle: handleJoin},
			CmdLeave:              {requiresJoin: true, handle: handleLeave},
			CmdGetState:           {requiresJoin: true, handle: handleGetState},
			CmdStart:              {roles: examinerOnly, requiresJoin: true, handle: handleStart},
			CmdPause:              {roles: examinerOnly, requiresJoin: true, handle: handlePause},
			CmdResume:             {roles: examinerOnly, requiresJoin: true, handle: handleResume},
			CmdEnd:                {roles: examinerOnly, requiresJoin: true, handle: handleEnd},
			CmdUpdateVitals:       {roles: examinerOnly, requiresJoin: true, handle: handleUpdateVitals},
			CmdUpdateFinding:      {roles: examinerOnly, requiresJoin: true, handle: handleUpdateFinding},
			CmdRevealLab:          {roles: examinerOnly, requiresJoin: true, handle: handleRevealLab},
			CmdPatientSpeak:       {roles: examinerOnly, requiresJoin: true, handle: handlePatientSpeak},
			CmdAdvanceProgression: {roles: examinerOnly, requiresJoin: true, handle: handleAdvance},
			CmdPerformAction:      {roles: examineeOnly, requiresJoin: true, handle: handlePerformAction},
			CmdRequestLab:         {roles: examineeOnly, requiresJoin: true, handle: handleRequestLab},
			CmdManikinFeedback:    {roles: manikinOnly, requiresJoin: true, handle: handleManikinFeedback},
		},
	}
}

// Dispatch 执行一条命令并返回应答，永不 panic
func (d *Dispatcher) Dispatch(c *Client, cmd Command) Ack {
	data, err := d.dispatch(c, cmd)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrAuthorization) ||
			errors.Is(err, domain.ErrNotJoined) {
			d.logger.Debug("Command rejected",
				zap.String("command", cmd.Type),
				zap.String("user_id", c.UserID),
				zap.String("role", string(c.Role)),
				zap.Error(err),
			)
		} else {
			d.logger.Info("Command failed",
				zap.String("command", cmd.Type),
				zap.String("user_id", c.UserID),
				zap.String("session_id", c.SessionID()),
				zap.Error(err),
			)
		}
		return errAck(cmd.ID, err)
	}
	return okAck(cmd.ID, data)
}

func (d *Dispatcher) dispatch(c *Client, cmd Command) (any, error) {
	rt, ok := d.routes[cmd.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown command %q", domain.ErrValidation, cmd.Type)
	}
	if !rt.allows(c.Role) {
		return nil, fmt.Errorf("%w: %s may not %s", domain.ErrAuthorization, c.Role, cmd.Type)
	}
	if !rt.requiresJoin {
		return rt.handle(d, c, nil, cmd.Payload)
	}

	sessionID, token := c.binding()
	if sessionID == "" {
		return nil, domain.ErrNotJoined
	}
	s, err := d.sessions.GetSession(sessionID)
	if err != nil {
		c.unbind()
		return nil, err
	}
	if err := s.Authorize(c.Role, token); err != nil {
		return nil, err
	}
	return rt.handle(d, c, s, cmd.Payload)
}

// Resolve 把会话 ID 或加入码解析为会话 ID
func (d *Dispatcher) Resolve(idOrCode string) (string, error) {
	s, err := d.sessions.Lookup(idOrCode)
	if err != nil {
		return "", err
	}
	return s.ID(), nil
}

// Disconnect 连接断开：释放角色槽位并退出房间
func (d *Dispatcher) Disconnect(c *Client) {
	d.leave(c)
	c.close()
}

func (d *Dispatcher) leave(c *Client) {
	sessionID, token := c.binding()
	if sessionID == "" {
		return
	}
	c.unbind()
	d.rooms.Unsubscribe(sessionID, c)

	s, err := d.sessions.GetSession(sessionID)
	if err != nil {
		return
	}
	if err := s.ReleaseRole(c.Role, token); err != nil {
		d.logger.Debug("Role already released",
			zap.String("session_id", sessionID),
			zap.String("role", string(c.Role)),
		)
	}
}

// decode 严格解析 payload；空 payload 视为 {}
func decode(payload json.RawMessage, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", domain.ErrValidation, err)
	}
	return nil
}

func handleJoin(d *Dispatcher, c *Client, _ *session.Session, payload json.RawMessage) (any, error) {
	var p joinPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}
	target := p.target()
	if target == "" {
		return nil, fmt.Errorf("%w: sessionId or joinCode is required", domain.ErrValidation)
	}
	s, err := d.sessions.Lookup(target)
	if err != nil {
		return nil, err
	}
	if current := c.SessionID(); current != "" {
		if current == s.ID() {
			return nil, fmt.Errorf("%w: already joined %s", domain.ErrValidation, current)
		}
		d.leave(c)
	}

	// 先订阅再占位和取快照，客户端丢弃 seq <= snapshot.seq 的事件
	d.rooms.Subscribe(s.ID(), c)
	token, err := s.ClaimRole(c.Role, c.UserID)
	if err != nil {
		d.rooms.Unsubscribe(s.ID(), c)
		return nil, err
	}
	snap, err := s.Snapshot(c.Role)
	if err != nil {
		_ = s.ReleaseRole(c.Role, token)
		d.rooms.Unsubscribe(s.ID(), c)
		return nil, err
	}
	c.bind(s.ID(), token)

	d.logger.Info("Client joined session",
		zap.String("session_id", s.ID()),
		zap.String("join_code", s.JoinCode()),
		zap.String("user_id", c.UserID),
		zap.String("role", string(c.Role)),
	)
	return joinResult{Token: token, Snapshot: snap}, nil
}

func handleLeave(d *Dispatcher, c *Client, _ *session.Session, _ json.RawMessage) (any, error) {
	d.leave(c)
	return nil, nil
}

func handleGetState(_ *Dispatcher, c *Client, s *session.Session, _ json.RawMessage) (any, error) {
	return s.Snapshot(c.Role)
}

func handleStart(_ *Dispatcher, _ *Client, s *session.Session, _ json.RawMessage) (any, error) {
	return nil, s.Start()
}

func handlePause(_ *Dispatcher, _ *Client, s *session.Session, _ json.RawMessage) (any, error) {
	return nil, s.Pause()
}

func handleResume(_ *Dispatcher, _ *Client, s *session.Session, _ json.RawMessage) (any, error) {
	return nil, s.Resume()
}

func handleEnd(_ *Dispatcher, _ *Client, s *session.Session, payload json.RawMessage) (any, error) {
	var p endPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}
	return s.End(p.Reason)
}

func handleUpdateVitals(_ *Dispatcher, _ *Client, s *session.Session, payload json.RawMessage) (any, error) {
	var patch domain.VitalsPatch
	if err := decode(payload, &patch); err != nil {
		return nil, err
	}
	return s.UpdateVitals(patch)
}

func handleUpdateFinding(_ *Dispatcher, _ *Client, s *session.Session, payload json.RawMessage) (any, error) {
	var p findingPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}
	if len(p.Path) == 0 {
		return nil, fmt.Errorf("%w: path is required", domain.ErrValidation)
	}
	return nil, s.UpdateFinding(p.Path, p.Value)
}

func handleRevealLab(_ *Dispatcher, _ *Client, s *session.Session, payload json.RawMessage) (any, error) {
	var p labPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}
	return s.RevealLab(p.LabID, p.Results)
}

func handlePatientSpeak(_ *Dispatcher, _ *Client, s *session.Session, payload json.RawMessage) (any, error) {
	var p speakPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}
	return s.PatientSpeak(p.Text, p.Mood)
}

func handleAdvance(_ *Dispatcher, _ *Client, s *session.Session, _ json.RawMessage) (any, error) {
	node, err := s.AdvanceProgression()
	if err != nil {
		return nil, err
	}
	return map[string]string{"nodeId": node}, nil
}

func handlePerformAction(_ *Dispatcher, c *Client, s *session.Session, payload json.RawMessage) (any, error) {
	var p actionPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}
	return s.LogAction(domain.ActionInput{
		ActionID:          p.ActionID,
		ActionLabel:       p.Label,
		Dimension:         p.Dimension,
		PerformedBy:       c.UserID,
		Parameters:        p.Parameters,
		ClientElapsedTime: p.ClientElapsedTime,
		Success:           p.Success,
	})
}

func handleRequestLab(_ *Dispatcher, c *Client, s *session.Session, payload json.RawMessage) (any, error) {
	var p labPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}
	if p.Results != nil {
		return nil, fmt.Errorf("%w: examinee cannot supply lab results", domain.ErrValidation)
	}
	return s.RequestLab(p.LabID, c.UserID)
}

func handleManikinFeedback(_ *Dispatcher, _ *Client, s *session.Session, payload json.RawMessage) (any, error) {
	var p map[string]any
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: feedback payload must be a JSON object", domain.ErrValidation)
	}
	return s.RecordSensorData(p)
}
