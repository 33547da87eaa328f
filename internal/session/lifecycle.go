package session

import (
	"fmt"
	"time"

	"github.com/Naser58164/praxis-medius/internal/domain"
	"github.com/Naser58164/praxis-medius/internal/progression"

	"go.uber.org/zap"
)

// DefaultEndReason End 未给原因时使用
const DefaultEndReason = "COMPLETED"

func invalidTransition(from, to domain.Status) error {
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
}

// Start CREATED -> RUNNING，开始 1Hz 计时
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusCreated {
		return invalidTransition(s.status, domain.StatusRunning)
	}
	if !s.stateInitialized {
		s.initState()
	}

	now := s.now().UTC()
	s.status = domain.StatusRunning
	s.startedAt = &now
	s.recordVitals()
	s.startTicker()

	s.logger.Info("Simulation started", zap.String("scenario_id", s.scenario.ID))
	s.emit(domain.EventSimulationStarted, domain.LifecycleData{
		Status:    s.status,
		StartedAt: copyTime(s.startedAt),
		InitialState: CurrentState{
			Vitals:        s.vitals,
			Findings:      s.findings.Clone(),
			CurrentNodeID: s.auto.Current(),
			Exhausted:     s.auto.Exhausted(),
		},
	})
	return nil
}

// Pause RUNNING -> PAUSED，停止计时，状态保持不变
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusRunning {
		return invalidTransition(s.status, domain.StatusPaused)
	}

	now := s.now().UTC()
	s.status = domain.StatusPaused
	s.pausedAt = &now
	s.stopTicker()

	s.logger.Info("Simulation paused", zap.Int("elapsed", s.elapsed))
	s.emit(domain.EventSimulationPaused, domain.LifecycleData{Status: s.status, ElapsedTime: s.elapsed})
	return nil
}

// Resume PAUSED -> RUNNING，继续计时，不重置 elapsedTime
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusPaused {
		return invalidTransition(s.status, domain.StatusRunning)
	}

	s.accumulatePause()
	s.status = domain.StatusRunning
	s.startTicker()

	s.logger.Info("Simulation resumed", zap.Int("elapsed", s.elapsed))
	s.emit(domain.EventSimulationResumed, domain.LifecycleData{Status: s.status, ElapsedTime: s.elapsed})
	return nil
}

// End RUNNING / PAUSED / CREATED -> COMPLETED，计算最终结果
func (s *Session) End(reason string) (*Results, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusCompleted {
		return nil, invalidTransition(s.status, domain.StatusCompleted)
	}
	if reason == "" {
		reason = DefaultEndReason
	}
	if s.status == domain.StatusPaused {
		s.accumulatePause()
	}

	now := s.now().UTC()
	s.stopTicker()
	s.status = domain.StatusCompleted
	s.endedAt = &now
	s.endReason = reason

	res := ComputeResults(s.actionLog, s.scenario.CriticalActions, s.elapsed, reason)
	s.results = &res

	s.logger.Info("Simulation ended",
		zap.String("reason", reason),
		zap.Int("elapsed", s.elapsed),
		zap.Int("actions", res.TotalActions),
		zap.String("outcome", res.Outcome),
	)
	out := res
	s.emit(domain.EventSimulationEnded, domain.LifecycleData{
		Status:      s.status,
		ElapsedTime: s.elapsed,
		EndedAt:     copyTime(s.endedAt),
		Reason:      reason,
		Results:     &out,
	})
	return &res, nil
}

// Results 已结束返回最终结果，否则按当前日志实时计算
func (s *Session) Results() Results {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.results != nil {
		return *s.results
	}
	return ComputeResults(s.actionLog, s.scenario.CriticalActions, s.elapsed, "")
}

// Tick 推进一秒运行时间（计时 goroutine 与测试共用的入口）
func (s *Session) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusRunning {
		return fmt.Errorf("%w: status is %s", domain.ErrSimulationNotActive, s.status)
	}
	s.tick()
	return nil
}

// Dispose 永久停止计时，会话从注册表移除时调用
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTicker()
	s.disposed = true
}

func (s *Session) tick() {
	s.elapsed++
	s.emit(domain.EventTick, domain.TickData{ElapsedTime: s.elapsed})

	tr, err := s.auto.OnTick(progression.NewGuardEnv(s.vitals, s.elapsed, ""))
	if err != nil {
		s.logger.Warn("Progression tick failed", zap.Error(err))
		return
	}
	if err := s.applyTransition(tr); err != nil {
		s.logger.Warn("Progression transition rejected", zap.Error(err))
	}
}

func (s *Session) accumulatePause() {
	if s.pausedAt != nil {
		s.pausedTotal += s.now().UTC().Sub(*s.pausedAt)
		s.pausedAt = nil
	}
}

func (s *Session) totalPausedSeconds() int {
	total := s.pausedTotal
	if s.pausedAt != nil {
		total += s.now().UTC().Sub(*s.pausedAt)
	}
	return int(total / time.Second)
}

// startTicker 持锁调用。每次启动换一代，旧代的残留 tick 被丢弃。
func (s *Session) startTicker() {
	s.tickGen++
	if s.tickInterval <= 0 || s.disposed {
		return
	}
	gen := s.tickGen
	stop := make(chan struct{})
	s.stopTick = stop
	go s.runTicker(gen, stop)
}

// stopTicker 持锁调用
func (s *Session) stopTicker() {
	s.tickGen++
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
}

func (s *Session) runTicker(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.tickGen == gen && s.status == domain.StatusRunning {
				s.tick()
			}
			s.mu.Unlock()
		}
	}
}
