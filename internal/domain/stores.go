package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemoryStore persists the append-only version chain of every memory.
// Nothing is physically overwritten: mutations insert a new version and the
// (id, version) primary key is the compare-and-swap for optimistic
// concurrency.
type MemoryStore interface {
	Create(ctx context.Context, m *Memory) error
	GetByID(ctx context.Context, id uuid.UUID) (*Memory, error)
	// GetAsOf returns the version that was latest at the given transaction
	// time instant.
	GetAsOf(ctx context.Context, id uuid.UUID, at time.Time) (*Memory, error)
	// InsertVersion writes m as version expected+1. Fails with
	// ErrVersionConflict when a concurrent writer got there first.
	InsertVersion(ctx context.Context, m *Memory, expected int64) error
	ListVersions(ctx context.Context, id uuid.UUID) ([]Memory, error)
	ListByExternalRef(ctx context.Context, ref ExternalRef, limit int) ([]Memory, error)
	ListRecent(ctx context.Context, since time.Time, limit int) ([]Memory, error)
}

// GraphStore persists causal edges. CreateEdge is idempotent on
// (source, target, relation); pruning is a soft delete.
type GraphStore interface {
	CreateEdge(ctx context.Context, e *CausalEdge) error
	GetEdge(ctx context.Context, sourceID, targetID uuid.UUID, relation RelationType) (*CausalEdge, error)
	EdgesFrom(ctx context.Context, id uuid.UUID) ([]CausalEdge, error)
	EdgesTo(ctx context.Context, id uuid.UUID) ([]CausalEdge, error)
	UpdateStrength(ctx context.Context, id uuid.UUID, strength float64) error
	StampValidated(ctx context.Context, id uuid.UUID, at time.Time) error
	Prune(ctx context.Context, minStrength float64) (int64, error)
	PruneByMemory(ctx context.Context, memoryID uuid.UUID) (int64, error)
}

// SnapshotStore is append-only grounding history.
type SnapshotStore interface {
	Append(ctx context.Context, s *GroundingSnapshot) error
	ListByMemory(ctx context.Context, memoryID uuid.UUID, limit int) ([]GroundingSnapshot, error)
	ListRecent(ctx context.Context, limit int) ([]GroundingSnapshot, error)
}

type ConflictStore interface {
	Create(ctx context.Context, c *Conflict) error
	GetByID(ctx context.Context, id string) (*Conflict, error)
	ListOpen(ctx context.Context, limit int) ([]Conflict, error)
	// HasOpen reports whether an unresolved conflict already exists for
	// exactly these parties, in order.
	HasOpen(ctx context.Context, memoryIDs []uuid.UUID) (bool, error)
	Resolve(ctx context.Context, id string, res Resolution) error
}

// EvidenceSource is the read-only boundary to the ground-truth analysis
// store. Collect answers one evidence type for one memory's refs.
type EvidenceSource interface {
	Name() string
	Collect(ctx context.Context, et EvidenceType, refs []ExternalRef) (EvidenceValue, error)
}

// SimilarityProvider scores how alike two memories' contents are, in [0,1].
// Supplied by a collaborator; this core treats it as an opaque function.
type SimilarityProvider interface {
	Similarity(ctx context.Context, a, b *Memory) (float64, error)
}
