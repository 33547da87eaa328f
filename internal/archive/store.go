package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Naser58164/praxis-medius/internal/domain"

	"github.com/go-redis/redis/v8"
)

// ResultStore 归档记录的存取（单元测试中用内存实现替换 Redis）
type ResultStore interface {
	Save(ctx context.Context, rec Record, ttl time.Duration) error
	Load(ctx context.Context, sessionID string) (*Record, error)
}

// RedisResultStore 每个会话一个键：<prefix><sessionId> -> Record JSON，带过期时间
type RedisResultStore struct {
	client *redis.Client
	prefix string
}

// NewRedisResultStore prefix 为空时使用 DefaultKeyPrefix
func NewRedisResultStore(client *redis.Client, prefix string) *RedisResultStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisResultStore{client: client, prefix: prefix}
}

// Key 会话结果所在的键
func (r *RedisResultStore) Key(sessionID string) string {
	return r.prefix + sessionID
}

// Save 覆盖写入
func (r *RedisResultStore) Save(ctx context.Context, rec Record, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal archive record: %w", err)
	}
	if err := r.client.Set(ctx, r.Key(rec.SessionID), b, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store results: %w", err)
	}
	return nil
}

// Load 键不存在或已过期时返回 ErrNotFound
func (r *RedisResultStore) Load(ctx context.Context, sessionID string) (*Record, error) {
	val, err := r.client.Get(ctx, r.Key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: no archived results for session %q", domain.ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to read archived results: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode archived results for session %q: %w", sessionID, err)
	}
	return &rec, nil
}
