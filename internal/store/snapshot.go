package store

import (
	"context"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotStore is the append-only grounding history. Rows are never
// updated or deleted; snapshot ids are ULIDs so insertion order is the
// lexical order.
type SnapshotStore struct {
	db *pgxpool.Pool
}

func NewSnapshotStore(db *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) Append(ctx context.Context, snap *domain.GroundingSnapshot) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO grounding_snapshots
		    (id, memory_id, verdict, score, per_evidence, data_sources, checked_at, flagged_for_review)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		snap.ID, snap.MemoryID, snap.Verdict, snap.Score, nonNullEvidence(snap.PerEvidence),
		nonNullStrings(snap.DataSourcesConsulted), snap.CheckedAt, snap.FlaggedForReview)
	return err
}

func (s *SnapshotStore) ListByMemory(ctx context.Context, memoryID uuid.UUID, limit int) ([]domain.GroundingSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(ctx,
		`SELECT id, memory_id, verdict, score, per_evidence, data_sources, checked_at, flagged_for_review
		 FROM grounding_snapshots
		 WHERE memory_id = $1
		 ORDER BY id DESC
		 LIMIT $2`, memoryID, limit)
}

func (s *SnapshotStore) ListRecent(ctx context.Context, limit int) ([]domain.GroundingSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(ctx,
		`SELECT id, memory_id, verdict, score, per_evidence, data_sources, checked_at, flagged_for_review
		 FROM grounding_snapshots
		 ORDER BY id DESC
		 LIMIT $1`, limit)
}

func (s *SnapshotStore) query(ctx context.Context, query string, args ...any) ([]domain.GroundingSnapshot, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.GroundingSnapshot
	for rows.Next() {
		var snap domain.GroundingSnapshot
		if err := scanSnapshot(rows, &snap); err != nil {
			return nil, err
		}
		results = append(results, snap)
	}
	return results, rows.Err()
}

func scanSnapshot(rows pgx.Rows, snap *domain.GroundingSnapshot) error {
	return rows.Scan(&snap.ID, &snap.MemoryID, &snap.Verdict, &snap.Score,
		&snap.PerEvidence, &snap.DataSourcesConsulted, &snap.CheckedAt, &snap.FlaggedForReview)
}
