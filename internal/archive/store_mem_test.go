package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Naser58164/praxis-medius/internal/domain"
)

// memResultStore 测试用的内存归档，按会话 ID 保存记录副本
type memResultStore struct {
	mu      sync.Mutex
	records map[string]memRecord
}

type memRecord struct {
	rec     Record
	expires time.Time
}

func newMemResultStore() *memResultStore {
	return &memResultStore{records: make(map[string]memRecord)}
}

func (m *memResultStore) Save(_ context.Context, rec Record, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.records[rec.SessionID] = memRecord{rec: rec, expires: exp}
	return nil
}

func (m *memResultStore) Load(_ context.Context, sessionID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.records[sessionID]
	if ok && !item.expires.IsZero() && time.Now().After(item.expires) {
		delete(m.records, sessionID)
		ok = false
	}
	if !ok {
		return nil, fmt.Errorf("%w: no archived results for session %q", domain.ErrNotFound, sessionID)
	}
	rec := item.rec
	return &rec, nil
}
