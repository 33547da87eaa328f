package scenario

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Naser58164/praxis-medius/internal/domain"
)

// Repository 场景存储。
// 每个 (scenarioId, version) 写入一次后不可修改，更新即写入新版本。
type Repository interface {
	List(ctx context.Context) ([]*domain.Scenario, error)
	Get(ctx context.Context, id string) (*domain.Scenario, error)
	GetVersion(ctx context.Context, id string, version int) (*domain.Scenario, error)
	Insert(ctx context.Context, s *domain.Scenario) error
	Delete(ctx context.Context, id string) error
}

// MemoryRepository 进程内存储（未启用数据库时使用）
type MemoryRepository struct {
	mu       sync.RWMutex
	versions map[string][]*domain.Scenario // 按 version 递增
}

// NewMemoryRepository 创建内存存储
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{versions: make(map[string][]*domain.Scenario)}
}

func (r *MemoryRepository) List(_ context.Context) ([]*domain.Scenario, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Scenario, 0, len(r.versions))
	for _, vs := range r.versions {
		s, err := vs[len(vs)-1].Clone()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*domain.Scenario, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vs, ok := r.versions[id]
	if !ok {
		return nil, fmt.Errorf("%w: scenario %q", domain.ErrNotFound, id)
	}
	return vs[len(vs)-1].Clone()
}

func (r *MemoryRepository) GetVersion(_ context.Context, id string, version int) (*domain.Scenario, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.versions[id] {
		if s.Version == version {
			return s.Clone()
		}
	}
	return nil, fmt.Errorf("%w: scenario %q version %d", domain.ErrNotFound, id, version)
}

func (r *MemoryRepository) Insert(_ context.Context, s *domain.Scenario) error {
	stored, err := s.Clone()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	vs := r.versions[s.ID]
	if len(vs) > 0 && vs[len(vs)-1].Version >= s.Version {
		return fmt.Errorf("%w: scenario %q version %d already exists", domain.ErrValidation, s.ID, s.Version)
	}
	r.versions[s.ID] = append(vs, stored)
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.versions[id]; !ok {
		return fmt.Errorf("%w: scenario %q", domain.ErrNotFound, id)
	}
	delete(r.versions, id)
	return nil
}
