package archive

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Naser58164/praxis-medius/common/config"
	rediscommon "github.com/Naser58164/praxis-medius/common/redis"
	"github.com/Naser58164/praxis-medius/internal/domain"
	"github.com/Naser58164/praxis-medius/internal/scenario"
	"github.com/Naser58164/praxis-medius/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestArchiver(t *testing.T) (*Archiver, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := rediscommon.NewRedisClient(&config.RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rediscommon.Close(client) })

	a := NewArchiver(NewRedisResultStore(client, ""), client, Options{
		TTL:    time.Hour,
		Stream: "praxis:results:stream",
	}, zap.NewNop())
	return a, mr
}

func endedSession(t *testing.T, sink domain.EventSink) *session.Session {
	t.Helper()
	seeds, err := scenario.LoadSeeds()
	require.NoError(t, err)

	s, err := session.New("sess-archive", "QWE234", seeds[0], session.Options{
		Sinks:  []domain.EventSink{sink},
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(s.Dispose)

	require.NoError(t, s.Start())
	_, err = s.LogAction(domain.ActionInput{ActionID: seeds[0].CriticalActions[0].ActionID, PerformedBy: "student-1"})
	require.NoError(t, err)
	_, err = s.End("TIME_UP")
	require.NoError(t, err)
	return s
}

func TestArchiver_StoresEndedSession(t *testing.T) {
	a, mr := newTestArchiver(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)

	s := endedSession(t, a)
	a.Stop()

	rec, err := a.Get(context.Background(), s.ID())
	require.NoError(t, err)
	assert.Equal(t, "TIME_UP", rec.EndReason)
	require.NotNil(t, rec.Results)
	assert.Equal(t, s.Results().Outcome, rec.Results.Outcome)
	assert.Equal(t, s.Results().CompletedCriticalActionIDs, rec.Results.CompletedCriticalActionIDs)
	assert.Equal(t, 1, rec.Results.TotalActions)
	assert.False(t, rec.ArchivedAt.IsZero())

	ttl := mr.TTL(DefaultKeyPrefix + s.ID())
	assert.Equal(t, time.Hour, ttl)

	client := rediscommon.NewRedisClient(&config.RedisConfig{Addr: mr.Addr()})
	defer rediscommon.Close(client)
	msgs, err := rediscommon.ReadRange(context.Background(), client, "praxis:results:stream", "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var streamed Record
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &streamed))
	assert.Equal(t, s.ID(), streamed.SessionID)
}

func TestArchiver_IgnoresOtherEvents(t *testing.T) {
	a, _ := newTestArchiver(t)

	a.Publish(domain.Event{SessionID: "s1", Name: domain.EventTick, Data: domain.TickData{ElapsedTime: 3}})
	a.Publish(domain.Event{SessionID: "s1", Name: domain.EventSimulationEnded, Data: "garbage"})
	assert.Len(t, a.queue, 0)

	_, err := a.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArchiver_QueueFullDrops(t *testing.T) {
	a := NewArchiver(newMemResultStore(), nil, Options{QueueSize: 1}, zap.NewNop())
	results := &session.Results{Outcome: session.OutcomeFail}
	ended := func(id string) domain.Event {
		return domain.Event{SessionID: id, Name: domain.EventSimulationEnded, Data: domain.LifecycleData{
			Status: domain.StatusCompleted, Reason: "COMPLETED", Results: results,
		}}
	}

	a.Publish(ended("s1"))
	a.Publish(ended("s2"))
	require.Len(t, a.queue, 1)

	// Stop 之前启动的 worker 会写完队列
	a.Start(context.Background())
	a.Stop()

	rec, err := a.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeFail, rec.Results.Outcome)

	_, err = a.Get(context.Background(), "s2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArchiver_StoreRequiresSessionID(t *testing.T) {
	a := NewArchiver(newMemResultStore(), nil, Options{}, zap.NewNop())
	err := a.Store(context.Background(), Record{Results: &session.Results{}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
