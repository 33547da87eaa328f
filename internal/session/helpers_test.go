package session

import (
	"sync"
	"testing"
	"time"

	"github.com/Naser58164/praxis-medius/internal/domain"
	"github.com/Naser58164/praxis-medius/internal/scenario"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingSink 记录所有事件
type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSink) Publish(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func (r *recordingSink) Named(name domain.EventName) []domain.Event {
	var out []domain.Event
	for _, ev := range r.Events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func seedScenario(t *testing.T, id string) *domain.Scenario {
	t.Helper()
	seeds, err := scenario.LoadSeeds()
	require.NoError(t, err)
	for _, s := range seeds {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("seed scenario %s not found", id)
	return nil
}

func newTestSession(t *testing.T, scenarioID string) (*Session, *recordingSink, *fakeClock) {
	t.Helper()
	sink := &recordingSink{}
	clock := newFakeClock()
	s, err := New("sess-1", "ABC234", seedScenario(t, scenarioID), Options{
		Sinks:  []domain.EventSink{sink},
		Logger: zap.NewNop(),
		Now:    clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(s.Dispose)
	return s, sink, clock
}

func action(id string) domain.ActionInput {
	return domain.ActionInput{ActionID: id, PerformedBy: "student-1"}
}
