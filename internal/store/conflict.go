package store

import (
	"context"
	"errors"
	"time"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConflictStore struct {
	db *pgxpool.Pool
}

func NewConflictStore(db *pgxpool.Pool) *ConflictStore {
	return &ConflictStore{db: db}
}

func (s *ConflictStore) Create(ctx context.Context, c *domain.Conflict) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO conflicts (id, memory_ids, kind, description, detected_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.MemoryIDs, c.Kind, c.Description, c.DetectedAt)
	return err
}

func (s *ConflictStore) GetByID(ctx context.Context, id string) (*domain.Conflict, error) {
	c := &domain.Conflict{}
	var res nullableResolution
	err := s.db.QueryRow(ctx,
		`SELECT id, memory_ids, kind, description, detected_at,
		        resolution_strategy, winner_id, resolved_by, resolved_at
		 FROM conflicts WHERE id = $1`, id,
	).Scan(&c.ID, &c.MemoryIDs, &c.Kind, &c.Description, &c.DetectedAt,
		&res.strategy, &res.winnerID, &res.resolvedBy, &res.resolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Resolution = res.toDomain()
	return c, nil
}

func (s *ConflictStore) ListOpen(ctx context.Context, limit int) ([]domain.Conflict, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, memory_ids, kind, description, detected_at,
		        resolution_strategy, winner_id, resolved_by, resolved_at
		 FROM conflicts
		 WHERE resolution_strategy IS NULL
		 ORDER BY id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Conflict
	for rows.Next() {
		var c domain.Conflict
		var res nullableResolution
		if err := rows.Scan(&c.ID, &c.MemoryIDs, &c.Kind, &c.Description, &c.DetectedAt,
			&res.strategy, &res.winnerID, &res.resolvedBy, &res.resolvedAt); err != nil {
			return nil, err
		}
		c.Resolution = res.toDomain()
		results = append(results, c)
	}
	return results, rows.Err()
}

func (s *ConflictStore) HasOpen(ctx context.Context, memoryIDs []uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM conflicts
		     WHERE memory_ids = $1 AND resolution_strategy IS NULL)`,
		memoryIDs,
	).Scan(&exists)
	return exists, err
}

func (s *ConflictStore) Resolve(ctx context.Context, id string, res domain.Resolution) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE conflicts
		 SET resolution_strategy = $2, winner_id = $3, resolved_by = $4, resolved_at = $5
		 WHERE id = $1 AND resolution_strategy IS NULL`,
		id, res.Strategy, res.WinnerID, res.ResolvedBy, res.ResolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type nullableResolution struct {
	strategy   *domain.ResolutionStrategy
	winnerID   *uuid.UUID
	resolvedBy *domain.ResolvedBy
	resolvedAt *time.Time
}

func (r nullableResolution) toDomain() *domain.Resolution {
	if r.strategy == nil {
		return nil
	}
	res := &domain.Resolution{Strategy: *r.strategy, WinnerID: r.winnerID}
	if r.resolvedBy != nil {
		res.ResolvedBy = *r.resolvedBy
	}
	if r.resolvedAt != nil {
		res.ResolvedAt = *r.resolvedAt
	}
	return res
}
