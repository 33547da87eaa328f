package registry

import (
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/Naser58164/praxis-medius/internal/domain"
	"github.com/Naser58164/praxis-medius/internal/scenario"
	"github.com/Naser58164/praxis-medius/internal/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultJoinCodeAttempts 加入码碰撞时的最大重试次数
const DefaultJoinCodeAttempts = 64

// Options 注册表参数
type Options struct {
	JoinCodeAttempts int
	TickInterval     time.Duration
	Sinks            []domain.EventSink
	Logger           *zap.Logger
	Now              func() time.Time
	Random           io.Reader // 默认 crypto/rand
}

// Registry 会话目录：ID 与加入码到会话的映射。
// 由进程启动时创建、关闭时 Close，不作为包级全局变量使用。
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*session.Session
	byCode map[string]string
	closed bool

	opts   Options
	logger *zap.Logger
}

// New 创建注册表
func New(opts Options) *Registry {
	if opts.JoinCodeAttempts <= 0 {
		opts.JoinCodeAttempts = DefaultJoinCodeAttempts
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Random == nil {
		opts.Random = rand.Reader
	}
	return &Registry{
		byID:   make(map[string]*session.Session),
		byCode: make(map[string]string),
		opts:   opts,
		logger: opts.Logger,
	}
}

// AddSink 追加事件接收方，只影响之后创建的会话
func (r *Registry) AddSink(sink domain.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.Sinks = append(append([]domain.EventSink(nil), r.opts.Sinks...), sink)
}

// CreateSession 校验场景后从快照创建会话并分配唯一加入码
func (r *Registry) CreateSession(sc *domain.Scenario) (*session.Session, error) {
	if err := scenario.Validate(sc); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("%w: registry is closed", domain.ErrClosed)
	}

	code, err := r.allocateJoinCode()
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	s, err := session.New(id, code, sc, session.Options{
		TickInterval: r.opts.TickInterval,
		Sinks:        r.opts.Sinks,
		Logger:       r.logger,
		Now:          r.opts.Now,
	})
	if err != nil {
		return nil, err
	}

	r.byID[id] = s
	r.byCode[code] = id

	r.logger.Info("Session created",
		zap.String("session_id", id),
		zap.String("join_code", code),
		zap.String("scenario_id", sc.ID),
	)
	return s, nil
}

// allocateJoinCode 持锁调用
func (r *Registry) allocateJoinCode() (string, error) {
	for i := 0; i < r.opts.JoinCodeAttempts; i++ {
		code, err := generateJoinCode(r.opts.Random)
		if err != nil {
			return "", err
		}
		if _, taken := r.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: no free code after %d attempts", domain.ErrJoinCodeExhausted, r.opts.JoinCodeAttempts)
}

// GetSession 按 ID 查找
func (r *Registry) GetSession(id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %q", domain.ErrNotFound, id)
	}
	return s, nil
}

// GetSessionByJoinCode 按加入码查找（大小写不敏感）
func (r *Registry) GetSessionByJoinCode(code string) (*session.Session, error) {
	normalized := NormalizeJoinCode(code)

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[normalized]
	if !ok {
		return nil, fmt.Errorf("%w: join code %q", domain.ErrNotFound, code)
	}
	return r.byID[id], nil
}

// Lookup 先按 ID 再按加入码查找
func (r *Registry) Lookup(idOrCode string) (*session.Session, error) {
	if s, err := r.GetSession(idOrCode); err == nil {
		return s, nil
	}
	return r.GetSessionByJoinCode(idOrCode)
}

// DeleteSession 释放加入码并停止会话计时；未知 ID 不报错
func (r *Registry) DeleteSession(id string) {
	r.mu.Lock()
	s, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		delete(r.byCode, s.JoinCode())
	}
	r.mu.Unlock()

	if ok {
		s.Dispose()
		r.logger.Info("Session deleted", zap.String("session_id", id), zap.String("join_code", s.JoinCode()))
	}
}

// ListSessions 按创建时间排序的会话摘要
func (r *Registry) ListSessions() []session.Summary {
	r.mu.RLock()
	sessions := make([]*session.Session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]session.Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len 会话数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// PruneCompleted 移除结束时间早于 retention 的已完成会话，返回被移除的 ID
func (r *Registry) PruneCompleted(retention time.Duration) []string {
	cutoff := r.opts.Now().Add(-retention)

	r.mu.RLock()
	var candidates []*session.Session
	for _, s := range r.byID {
		candidates = append(candidates, s)
	}
	r.mu.RUnlock()

	var pruned []string
	for _, s := range candidates {
		if s.Status() != domain.StatusCompleted {
			continue
		}
		if ended := s.EndedAt(); ended != nil && !ended.After(cutoff) {
			r.DeleteSession(s.ID())
			pruned = append(pruned, s.ID())
		}
	}
	if len(pruned) > 0 {
		r.logger.Info("Pruned completed sessions", zap.Int("count", len(pruned)))
	}
	return pruned
}

// Close 停止所有会话，之后 CreateSession 失败
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*session.Session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, s)
	}
	r.byID = make(map[string]*session.Session)
	r.byCode = make(map[string]string)
	r.closed = true
	r.mu.Unlock()

	for _, s := range sessions {
		s.Dispose()
	}
	r.logger.Info("Session registry closed", zap.Int("sessions", len(sessions)))
}
