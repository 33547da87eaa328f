package scenario

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Naser58164/praxis-medius/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed seeds/*.json
var seedFS embed.FS

// Catalog 场景库：校验、版本化，对外只返回副本
type Catalog struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewCatalog 创建场景库
func NewCatalog(repo Repository, logger *zap.Logger) *Catalog {
	return &Catalog{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// List 所有场景的最新版本
func (c *Catalog) List(ctx context.Context) ([]*domain.Scenario, error) {
	return c.repo.List(ctx)
}

// Get 场景最新版本
func (c *Catalog) Get(ctx context.Context, id string) (*domain.Scenario, error) {
	return c.repo.Get(ctx, id)
}

// GetVersion 指定版本
func (c *Catalog) GetVersion(ctx context.Context, id string, version int) (*domain.Scenario, error) {
	return c.repo.GetVersion(ctx, id, version)
}

// Create 新建场景（version 1）；未给 scenarioId 时生成 UUID
func (c *Catalog) Create(ctx context.Context, s *domain.Scenario) (*domain.Scenario, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: scenario is nil", domain.ErrValidation)
	}
	created, err := s.Clone()
	if err != nil {
		return nil, err
	}
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if _, err := c.repo.Get(ctx, created.ID); err == nil {
		return nil, fmt.Errorf("%w: scenario %q already exists", domain.ErrValidation, created.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := c.now().UTC()
	created.Version = 1
	created.CreatedAt = now
	created.UpdatedAt = now
	created.InitialVitals = created.InitialVitals.Clamp()

	if err := Validate(created); err != nil {
		return nil, err
	}
	if err := c.repo.Insert(ctx, created); err != nil {
		return nil, err
	}

	c.logger.Info("Scenario created",
		zap.String("scenario_id", created.ID),
		zap.String("title", created.Title),
	)
	return created, nil
}

// Update 以 s 的内容写入新版本，旧版本保持不变（进行中的会话持有自己的快照）
func (c *Catalog) Update(ctx context.Context, id string, s *domain.Scenario) (*domain.Scenario, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: scenario is nil", domain.ErrValidation)
	}
	existing, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.Clone()
	if err != nil {
		return nil, err
	}

	updated.ID = id
	updated.Version = existing.Version + 1
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = c.now().UTC()
	updated.InitialVitals = updated.InitialVitals.Clamp()

	if err := Validate(updated); err != nil {
		return nil, err
	}
	if err := c.repo.Insert(ctx, updated); err != nil {
		return nil, err
	}

	c.logger.Info("Scenario updated",
		zap.String("scenario_id", id),
		zap.Int("version", updated.Version),
	)
	return updated, nil
}

// Delete 删除场景
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.repo.Delete(ctx, id); err != nil {
		return err
	}
	c.logger.Info("Scenario deleted", zap.String("scenario_id", id))
	return nil
}

// Seed 写入内置场景，已存在的跳过
func (c *Catalog) Seed(ctx context.Context) (int, error) {
	seeds, err := LoadSeeds()
	if err != nil {
		return 0, err
	}

	added := 0
	for _, s := range seeds {
		if _, err := c.repo.Get(ctx, s.ID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return added, err
		}
		if _, err := c.Create(ctx, s); err != nil {
			return added, fmt.Errorf("failed to seed scenario %s: %w", s.ID, err)
		}
		added++
	}
	return added, nil
}

// LoadSeeds 解析内置场景文件
func LoadSeeds() ([]*domain.Scenario, error) {
	files, err := fs.Glob(seedFS, "seeds/*.json")
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Scenario, 0, len(files))
	for _, name := range files {
		b, err := seedFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read seed %s: %w", name, err)
		}
		var s domain.Scenario
		if err := json.Unmarshal(b, &s); err != nil {
			return nil, fmt.Errorf("failed to parse seed %s: %w", name, err)
		}
		out = append(out, &s)
	}
	return out, nil
}
