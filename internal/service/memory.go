package service

import (
	"context"
	"errors"
	"time"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/arjunp-dev/ledgermind/internal/resilience"
	"github.com/arjunp-dev/ledgermind/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrMemoryNotFound    = errors.New("memory not found")
	ErrSummaryEmpty      = errors.New("summary is required")
	ErrInvalidConfidence = errors.New("confidence must be in [0,1]")
	ErrInvalidImportance = errors.New("invalid importance")
	// ErrInvalidTransition is a structural violation: closing an already
	// closed valid-time interval, or closing it before it opened.
	ErrInvalidTransition = errors.New("invalid valid-time transition")
	ErrMemoryArchived    = errors.New("memory is archived")
	ErrInvalidAdjustMode = errors.New("invalid confidence adjustment mode")
)

const depMemoryStore = "memory_store"

// MemoryService owns the memory lifecycle. Every mutation is
// read-latest, compute, conditional-write; losses to concurrent writers
// are retried transparently with backoff before surfacing.
type MemoryService struct {
	memories domain.MemoryStore
	graph    domain.GraphStore
	retrier  *resilience.Retrier
	budget   *resilience.Budget
	logger   *zap.Logger

	now func() time.Time
}

func NewMemoryService(memories domain.MemoryStore, graph domain.GraphStore, retrier *resilience.Retrier, budget *resilience.Budget, logger *zap.Logger) *MemoryService {
	return &MemoryService{
		memories: memories,
		graph:    graph,
		retrier:  retrier,
		budget:   budget,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *MemoryService) Create(ctx context.Context, m *domain.Memory) error {
	if m.Summary == "" {
		return ErrSummaryEmpty
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return ErrInvalidConfidence
	}
	if m.Importance == "" {
		m.Importance = domain.ImportanceMedium
	}
	if !domain.ValidImportance(string(m.Importance)) {
		return ErrInvalidImportance
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.ValidFrom.IsZero() {
		m.ValidFrom = s.now()
	}

	err := s.budget.Do(ctx, depMemoryStore, func(ctx context.Context) error {
		return s.memories.Create(ctx, m)
	})
	if err != nil {
		return err
	}

	s.logger.Info("memory created",
		zap.String("memory_id", m.ID.String()),
		zap.String("kind", m.Kind),
		zap.Float64("confidence", m.Confidence))
	return nil
}

func (s *MemoryService) Get(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	m, err := s.memories.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMemoryNotFound
	}
	return m, err
}

// GetAsOf reconstructs the version that was latest at the given
// transaction-time instant.
func (s *MemoryService) GetAsOf(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Memory, error) {
	m, err := s.memories.GetAsOf(ctx, id, at)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMemoryNotFound
	}
	return m, err
}

// ListRecent returns the latest versions recorded since the cutoff,
// newest first.
func (s *MemoryService) ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.Memory, error) {
	return s.memories.ListRecent(ctx, since, limit)
}

func (s *MemoryService) Versions(ctx context.Context, id uuid.UUID) ([]domain.Memory, error) {
	versions, err := s.memories.ListVersions(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMemoryNotFound
	}
	return versions, err
}

// Update writes a new transaction-time version carrying the patch. The
// prior version is preserved; RecordedAt never moves.
func (s *MemoryService) Update(ctx context.Context, id uuid.UUID, patch domain.MemoryPatch) (*domain.Memory, error) {
	if patch.Confidence != nil && (*patch.Confidence < 0 || *patch.Confidence > 1) {
		return nil, ErrInvalidConfidence
	}
	if patch.Importance != nil && !domain.ValidImportance(string(*patch.Importance)) {
		return nil, ErrInvalidImportance
	}
	return s.mutate(ctx, "update memory", id, func(m *domain.Memory) error {
		applyPatch(m, patch)
		return nil
	})
}

// CloseValidTime permanently ends a memory's valid-time interval. Fails
// with ErrInvalidTransition if the interval is already closed or the end
// precedes the start; a closed interval is never reopened.
func (s *MemoryService) CloseValidTime(ctx context.Context, id uuid.UUID, until time.Time) (*domain.Memory, error) {
	return s.mutate(ctx, "close valid time", id, func(m *domain.Memory) error {
		if m.ValidUntil != nil {
			return ErrInvalidTransition
		}
		if until.Before(m.ValidFrom) {
			return ErrInvalidTransition
		}
		u := until
		m.ValidUntil = &u
		return nil
	})
}

// Archive soft-retires a memory and prunes its live graph edges.
func (s *MemoryService) Archive(ctx context.Context, id uuid.UUID, reason string) (*domain.Memory, error) {
	m, err := s.mutate(ctx, "archive memory", id, func(m *domain.Memory) error {
		if m.Archived {
			return ErrMemoryArchived
		}
		m.Archived = true
		m.ArchiveReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	pruned, err := s.graph.PruneByMemory(ctx, id)
	if err != nil {
		s.logger.Warn("failed to prune edges for archived memory",
			zap.String("memory_id", id.String()), zap.Error(err))
	} else if pruned > 0 {
		s.logger.Info("pruned edges for archived memory",
			zap.String("memory_id", id.String()), zap.Int64("pruned", pruned))
	}
	return m, nil
}

// AdjustConfidence applies a grounding adjustment mode. AdjustSet lowers
// confidence to the given ceiling but never raises it.
func (s *MemoryService) AdjustConfidence(ctx context.Context, id uuid.UUID, mode domain.AdjustmentMode, amount float64) (*domain.Memory, error) {
	if !domain.ValidAdjustmentMode(string(mode)) {
		return nil, ErrInvalidAdjustMode
	}
	if mode == domain.AdjustNoChange {
		return s.Get(ctx, id)
	}
	return s.mutate(ctx, "adjust confidence", id, func(m *domain.Memory) error {
		switch mode {
		case domain.AdjustIncrease:
			m.Confidence += amount
		case domain.AdjustDecrease:
			m.Confidence -= amount
		case domain.AdjustSet:
			if m.Confidence > amount {
				m.Confidence = amount
			}
		}
		if m.Confidence > 1 {
			m.Confidence = 1
		}
		if m.Confidence < 0 {
			m.Confidence = 0
		}
		return nil
	})
}

// mutate is the single conditional-write path: read the latest version,
// apply fn, insert as version+1, retry on concurrent-writer loss.
func (s *MemoryService) mutate(ctx context.Context, op string, id uuid.UUID, fn func(*domain.Memory) error) (*domain.Memory, error) {
	var result *domain.Memory
	err := s.retrier.Do(ctx, op, isVersionConflict, func(ctx context.Context) error {
		return s.budget.Do(ctx, depMemoryStore, func(ctx context.Context) error {
			m, err := s.memories.GetByID(ctx, id)
			if err != nil {
				return err
			}
			expected := m.Version
			if err := fn(m); err != nil {
				return err
			}
			if err := s.memories.InsertVersion(ctx, m, expected); err != nil {
				return err
			}
			result = m
			return nil
		})
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMemoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isVersionConflict(err error) bool {
	return errors.Is(err, store.ErrVersionConflict)
}

func applyPatch(m *domain.Memory, patch domain.MemoryPatch) {
	if patch.Kind != nil {
		m.Kind = *patch.Kind
	}
	if patch.Summary != nil {
		m.Summary = *patch.Summary
	}
	if patch.Confidence != nil {
		m.Confidence = *patch.Confidence
	}
	if patch.Importance != nil {
		m.Importance = *patch.Importance
	}
	if patch.ExternalRefs != nil {
		m.ExternalRefs = *patch.ExternalRefs
	}
	if patch.SupersededBy != nil {
		m.SupersededBy = patch.SupersededBy
	}
	if patch.Supersedes != nil {
		m.Supersedes = patch.Supersedes
	}
}
