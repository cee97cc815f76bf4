// Package similarity supplies the collaborator-owned similarity signal.
// The core only consumes the [0,1] score; how it is computed is opaque.
package similarity

import (
	"fmt"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	ProviderPgVector = "pgvector"
	ProviderMock     = "mock"
)

// NewProvider creates a similarity provider by name. The pgvector provider
// needs a handle to the ground-truth pool where the collaborator stores
// memory embeddings.
func NewProvider(provider string, groundTruth *pgxpool.Pool, logger *zap.Logger) (domain.SimilarityProvider, error) {
	switch provider {
	case ProviderPgVector:
		if groundTruth == nil {
			return nil, fmt.Errorf("pgvector similarity provider requires a ground-truth pool")
		}
		return NewPgVectorProvider(groundTruth, logger), nil

	case ProviderMock:
		return NewMockProvider(), nil

	default:
		return nil, fmt.Errorf("unknown similarity provider: %s (valid options: pgvector, mock)", provider)
	}
}
