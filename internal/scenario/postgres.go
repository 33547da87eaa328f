package scenario

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Naser58164/praxis-medius/internal/domain"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Migrations 场景表的 SQL 迁移
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir Migrations 内的目录
const MigrationsDir = "migrations"

const pqUniqueViolation = "23505"

// PostgresRepository 场景存储（整份模板以 JSONB 保存在 document 列）
type PostgresRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresRepository 创建 PostgreSQL 场景存储
func NewPostgresRepository(db *sql.DB, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}
}

// List 每个场景的最新版本
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Scenario, error) {
	query := `
		SELECT DISTINCT ON (scenario_id) document
		FROM scenarios
		ORDER BY scenario_id, version DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	var out []*domain.Scenario
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		s, err := decodeDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scenarios: %w", err)
	}
	return out, nil
}

// Get 最新版本
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.Scenario, error) {
	query := `
		SELECT document
		FROM scenarios
		WHERE scenario_id = $1
		ORDER BY version DESC
		LIMIT 1
	`
	return r.queryOne(ctx, query, fmt.Sprintf("scenario %q", id), id)
}

// GetVersion 指定版本
func (r *PostgresRepository) GetVersion(ctx context.Context, id string, version int) (*domain.Scenario, error) {
	query := `
		SELECT document
		FROM scenarios
		WHERE scenario_id = $1 AND version = $2
	`
	return r.queryOne(ctx, query, fmt.Sprintf("scenario %q version %d", id, version), id, version)
}

func (r *PostgresRepository) queryOne(ctx context.Context, query, what string, args ...interface{}) (*domain.Scenario, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, what)
		}
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	return decodeDocument(doc)
}

// Insert 写入新版本；同一 (scenario_id, version) 已存在时返回 ErrValidation
func (r *PostgresRepository) Insert(ctx context.Context, s *domain.Scenario) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %w", err)
	}

	query := `
		INSERT INTO scenarios (scenario_id, version, title, category, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.ExecContext(ctx, query, s.ID, s.Version, s.Title, s.Category, doc, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("%w: scenario %q version %d already exists", domain.ErrValidation, s.ID, s.Version)
		}
		return fmt.Errorf("failed to insert scenario: %w", err)
	}

	r.logger.Debug("Scenario version stored",
		zap.String("scenario_id", s.ID),
		zap.Int("version", s.Version),
	)
	return nil
}

// Delete 删除场景的所有版本
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scenarios WHERE scenario_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scenario: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: scenario %q", domain.ErrNotFound, id)
	}
	return nil
}

func decodeDocument(doc []byte) (*domain.Scenario, error) {
	var s domain.Scenario
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario document: %w", err)
	}
	if s.InitialFindings == nil {
		s.InitialFindings = domain.Findings{}
	}
	return &s, nil
}
