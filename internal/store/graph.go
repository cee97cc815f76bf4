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

const edgeColumns = `id, source_id, target_id, relation, strength, evidence,
	inferred, created_at, validated_at`

// GraphStore persists causal edges. Edges are identified by content
// (source, target, relation) so concurrent inference adding the same edge
// twice is a no-op, not an error.
type GraphStore struct {
	db *pgxpool.Pool
}

func NewGraphStore(db *pgxpool.Pool) *GraphStore {
	return &GraphStore{db: db}
}

func (s *GraphStore) CreateEdge(ctx context.Context, edge *domain.CausalEdge) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO causal_edges (source_id, target_id, relation, strength, evidence, inferred)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (source_id, target_id, relation) WHERE pruned_at IS NULL
		 DO NOTHING
		 RETURNING id, created_at`,
		edge.SourceID, edge.TargetID, edge.Relation, edge.Strength, nonNullStrings(edge.Evidence), edge.Inferred,
	).Scan(&edge.ID, &edge.CreatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	// Exact duplicate: hydrate from the stored edge so callers see the
	// winning write.
	existing, err := s.GetEdge(ctx, edge.SourceID, edge.TargetID, edge.Relation)
	if err != nil {
		return err
	}
	*edge = *existing
	return nil
}

func (s *GraphStore) GetEdge(ctx context.Context, sourceID, targetID uuid.UUID, relation domain.RelationType) (*domain.CausalEdge, error) {
	edge := &domain.CausalEdge{}
	err := s.db.QueryRow(ctx,
		`SELECT `+edgeColumns+`
		 FROM causal_edges
		 WHERE source_id = $1 AND target_id = $2 AND relation = $3 AND pruned_at IS NULL`,
		sourceID, targetID, relation,
	).Scan(&edge.ID, &edge.SourceID, &edge.TargetID, &edge.Relation, &edge.Strength,
		&edge.Evidence, &edge.Inferred, &edge.CreatedAt, &edge.ValidatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return edge, nil
}

func (s *GraphStore) EdgesFrom(ctx context.Context, id uuid.UUID) ([]domain.CausalEdge, error) {
	return s.queryEdges(ctx,
		`SELECT `+edgeColumns+`
		 FROM causal_edges
		 WHERE source_id = $1 AND pruned_at IS NULL
		 ORDER BY strength DESC`, id)
}

func (s *GraphStore) EdgesTo(ctx context.Context, id uuid.UUID) ([]domain.CausalEdge, error) {
	return s.queryEdges(ctx,
		`SELECT `+edgeColumns+`
		 FROM causal_edges
		 WHERE target_id = $1 AND pruned_at IS NULL
		 ORDER BY strength DESC`, id)
}

func (s *GraphStore) UpdateStrength(ctx context.Context, id uuid.UUID, strength float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE causal_edges SET strength = $2 WHERE id = $1 AND pruned_at IS NULL`,
		id, strength)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GraphStore) StampValidated(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE causal_edges SET validated_at = $2 WHERE id = $1 AND pruned_at IS NULL`,
		id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Prune soft-deletes edges whose strength decayed below the floor.
func (s *GraphStore) Prune(ctx context.Context, minStrength float64) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE causal_edges SET pruned_at = NOW()
		 WHERE strength < $1 AND pruned_at IS NULL`, minStrength)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PruneByMemory soft-deletes every live edge touching an archived memory.
func (s *GraphStore) PruneByMemory(ctx context.Context, memoryID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE causal_edges SET pruned_at = NOW()
		 WHERE (source_id = $1 OR target_id = $1) AND pruned_at IS NULL`, memoryID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *GraphStore) queryEdges(ctx context.Context, query string, args ...any) ([]domain.CausalEdge, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.CausalEdge
	for rows.Next() {
		var edge domain.CausalEdge
		if err := rows.Scan(&edge.ID, &edge.SourceID, &edge.TargetID, &edge.Relation,
			&edge.Strength, &edge.Evidence, &edge.Inferred, &edge.CreatedAt, &edge.ValidatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}
