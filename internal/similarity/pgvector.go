package similarity

import (
	"context"
	"errors"
	"fmt"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// ErrEmbeddingMissing is returned when either memory has no embedding in
// the ground-truth store yet. Callers treat it as "signal unavailable".
var ErrEmbeddingMissing = errors.New("embedding missing")

// PgVectorProvider computes cosine similarity between the summary
// embeddings the collaborator maintains in Store B.
type PgVectorProvider struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPgVectorProvider(db *pgxpool.Pool, logger *zap.Logger) *PgVectorProvider {
	return &PgVectorProvider{db: db, logger: logger}
}

func (p *PgVectorProvider) Similarity(ctx context.Context, a, b *domain.Memory) (float64, error) {
	vec, err := p.embedding(ctx, a.ID.String())
	if err != nil {
		return 0, err
	}

	var sim float64
	err = p.db.QueryRow(ctx,
		`SELECT 1 - (embedding <=> $1) FROM memory_embeddings WHERE memory_id = $2`,
		vec, b.ID.String(),
	).Scan(&sim)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrEmbeddingMissing
		}
		return 0, fmt.Errorf("similarity query: %w", err)
	}

	// Cosine distance can exceed 1 for unnormalized vectors.
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return sim, nil
}

func (p *PgVectorProvider) embedding(ctx context.Context, memoryID string) (pgvector.Vector, error) {
	var vec pgvector.Vector
	err := p.db.QueryRow(ctx,
		`SELECT embedding FROM memory_embeddings WHERE memory_id = $1`, memoryID,
	).Scan(&vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return vec, ErrEmbeddingMissing
		}
		return vec, fmt.Errorf("embedding lookup: %w", err)
	}
	return vec, nil
}
