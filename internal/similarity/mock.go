package similarity

import (
	"context"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/google/uuid"
)

// MockProvider is a configurable similarity provider for testing.
// Pair scores are keyed by memory id pair (order-insensitive); unknown
// pairs return Default.
type MockProvider struct {
	Default float64
	Pairs   map[[2]uuid.UUID]float64
	Err     error

	Calls [][2]uuid.UUID
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		Default: 0.5,
		Pairs:   make(map[[2]uuid.UUID]float64),
	}
}

func (m *MockProvider) SetPair(a, b uuid.UUID, score float64) {
	m.Pairs[pairKey(a, b)] = score
}

func (m *MockProvider) Similarity(ctx context.Context, a, b *domain.Memory) (float64, error) {
	m.Calls = append(m.Calls, [2]uuid.UUID{a.ID, b.ID})
	if m.Err != nil {
		return 0, m.Err
	}
	if score, ok := m.Pairs[pairKey(a.ID, b.ID)]; ok {
		return score, nil
	}
	return m.Default, nil
}

func pairKey(a, b uuid.UUID) [2]uuid.UUID {
	if a.String() > b.String() {
		a, b = b, a
	}
	return [2]uuid.UUID{a, b}
}
