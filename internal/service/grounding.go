package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/arjunp-dev/ledgermind/internal/resilience"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrAllEvidenceUnavailable: every collector failed, nothing was
	// scored. Grounding fails open; the memory is left untouched.
	ErrAllEvidenceUnavailable = errors.New("all evidence unavailable")
)

const (
	DefaultBatchParallelism = 8

	depEvidenceSource = "evidence_source"
)

// GroundingService re-validates stored memories against the ground-truth
// store: collect evidence, score it, map the score to a verdict, adjust
// confidence, and on contradiction wire the finding into the causal graph
// and the conflict ledger.
type GroundingService struct {
	memories    *MemoryService
	graph       *GraphService
	inference   *InferenceService
	conflicts   *ConflictService
	snapshots   domain.SnapshotStore
	source      domain.EvidenceSource
	weights     *WeightEngine
	budget      *resilience.Budget
	thresholds  domain.VerdictThresholds
	parallelism int
	logger      *zap.Logger

	now func() time.Time
}

func NewGroundingService(
	memories *MemoryService,
	graph *GraphService,
	inference *InferenceService,
	conflicts *ConflictService,
	snapshots domain.SnapshotStore,
	source domain.EvidenceSource,
	weights *WeightEngine,
	budget *resilience.Budget,
	thresholds domain.VerdictThresholds,
	logger *zap.Logger,
) *GroundingService {
	return &GroundingService{
		memories:    memories,
		graph:       graph,
		inference:   inference,
		conflicts:   conflicts,
		snapshots:   snapshots,
		source:      source,
		weights:     weights,
		budget:      budget,
		thresholds:  thresholds,
		parallelism: DefaultBatchParallelism,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *GroundingService) SetParallelism(n int) {
	if n > 0 {
		s.parallelism = n
	}
}

// Ground re-validates a single memory and returns the snapshot. A memory
// whose valid time is closed is not groundable: it gets an
// insufficient_data snapshot with no evidence consulted and no confidence
// change.
func (s *GroundingService) Ground(ctx context.Context, id uuid.UUID) (*domain.GroundingSnapshot, error) {
	m, err := s.memories.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if m.ValidUntil != nil || m.Archived {
		snap := s.newSnapshot(m.ID, domain.VerdictInsufficientData, 0, nil, nil, false)
		return snap, s.appendSnapshot(ctx, snap)
	}

	weights, _ := s.weights.Weights(ctx)
	contributions, collectorErrs := s.collect(ctx, m)

	if len(contributions) == 0 {
		if len(collectorErrs) > 0 {
			// Fail open: record the Error snapshot, touch nothing else.
			snap := s.newSnapshot(m.ID, domain.VerdictError, 0, nil, []string{s.source.Name()}, true)
			if err := s.appendSnapshot(ctx, snap); err != nil {
				return nil, err
			}
			return snap, nil
		}
		snap := s.newSnapshot(m.ID, domain.VerdictUnconfirmed, 0, nil, []string{s.source.Name()}, true)
		return snap, s.appendSnapshot(ctx, snap)
	}

	score := weightedScore(contributions, weights)
	verdict := s.thresholds.VerdictForScore(score)
	flagged := verdict == domain.VerdictContradicted || verdict == domain.VerdictStale

	snap := s.newSnapshot(m.ID, verdict, score, contributions, []string{s.source.Name()}, flagged)

	mode, amount := domain.AdjustmentForVerdict(verdict)
	if _, err := s.memories.AdjustConfidence(ctx, m.ID, mode, amount); err != nil {
		return nil, fmt.Errorf("apply confidence adjustment: %w", err)
	}

	if verdict == domain.VerdictContradicted {
		s.recordContradiction(ctx, m, score, contributions)
	}

	if err := s.appendSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	s.logger.Info("memory grounded",
		zap.String("memory_id", m.ID.String()),
		zap.String("verdict", string(verdict)),
		zap.Float64("score", score))
	return snap, nil
}

// BatchOutcome reports one memory's result within a grounding batch.
type BatchOutcome struct {
	MemoryID uuid.UUID                 `json:"memory_id"`
	Snapshot *domain.GroundingSnapshot `json:"snapshot,omitempty"`
	Error    string                    `json:"error,omitempty"`
}

// BatchResult is the full accounting of a batch: per-memory outcomes,
// candidates deferred by the cap or the deadline (never silently dropped),
// and what the post-pass inference and auto-resolution did.
type BatchResult struct {
	Outcomes          []BatchOutcome `json:"outcomes"`
	Deferred          []uuid.UUID    `json:"deferred,omitempty"`
	EdgesInferred     int            `json:"edges_inferred"`
	ConflictsResolved int            `json:"conflicts_resolved"`
}

// GroundBatch grounds up to limit candidates with bounded parallelism. One
// memory failing never aborts the batch; excess or deadline-cut candidates
// come back as deferred. After the pass, causal inference runs over the
// touched memories and freshly opened conflicts get an auto-resolution
// attempt.
func (s *GroundingService) GroundBatch(ctx context.Context, ids []uuid.UUID, limit int) (*BatchResult, error) {
	result := &BatchResult{}

	work := ids
	if limit > 0 && len(ids) > limit {
		work = ids[:limit]
		result.Deferred = append(result.Deferred, ids[limit:]...)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for _, id := range work {
		// Deadline hit: defer what hasn't started instead of abandoning it.
		if gctx.Err() != nil {
			mu.Lock()
			result.Deferred = append(result.Deferred, id)
			mu.Unlock()
			continue
		}

		id := id
		g.Go(func() error {
			snap, err := s.Ground(gctx, id)
			outcome := BatchOutcome{MemoryID: id, Snapshot: snap}
			if err != nil {
				outcome.Error = err.Error()
			}
			mu.Lock()
			result.Outcomes = append(result.Outcomes, outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	touched := s.touchedMemories(ctx, result.Outcomes)
	if len(touched) > 1 && s.inference != nil {
		added, err := s.inference.InferForTouched(ctx, touched)
		if err != nil {
			s.logger.Warn("causal inference after batch failed", zap.Error(err))
		}
		result.EdgesInferred = added
	}

	if s.conflicts != nil {
		resolved, err := s.conflicts.AutoResolveOpen(ctx)
		if err != nil {
			s.logger.Warn("auto resolution after batch failed", zap.Error(err))
		}
		result.ConflictsResolved = resolved
	}

	return result, nil
}

// collect queries every evidence type. Collector failures degrade
// gracefully: the failing type is skipped and scoring continues with what
// was collected.
func (s *GroundingService) collect(ctx context.Context, m *domain.Memory) (map[domain.EvidenceType]float64, map[domain.EvidenceType]error) {
	contributions := map[domain.EvidenceType]float64{}
	collectorErrs := map[domain.EvidenceType]error{}

	for _, et := range domain.AllEvidenceTypes {
		var value domain.EvidenceValue
		err := s.budget.Do(ctx, depEvidenceSource, func(ctx context.Context) error {
			var collectErr error
			value, collectErr = s.source.Collect(ctx, et, m.ExternalRefs)
			return collectErr
		})
		if err != nil {
			collectorErrs[et] = err
			s.logger.Warn("evidence collector failed",
				zap.String("memory_id", m.ID.String()),
				zap.String("evidence_type", string(et)),
				zap.Error(err))
			continue
		}
		if !value.Applicable {
			continue
		}
		v := value.Value
		if v != v || math.IsInf(v, 0) {
			v = 0
		}
		contributions[et] = v
	}
	return contributions, collectorErrs
}

// weightedScore is the weighted average of the collected contributions.
// Non-finite weights contribute nothing.
func weightedScore(contributions map[domain.EvidenceType]float64, weights map[domain.EvidenceType]float64) float64 {
	sum, total := 0.0, 0.0
	for et, v := range contributions {
		w := weights[et]
		if w != w || math.IsInf(w, 0) || w <= 0 {
			continue
		}
		sum += w * v
		total += w
	}
	if total == 0 {
		return 0
	}
	score := sum / total
	if score != score {
		return 0
	}
	return score
}

// recordContradiction wires an invalidation into the causal graph and the
// conflict ledger: a contradicts edge from the evidence source's synthetic
// node back to the memory, plus an open Conflict. Both writes are
// idempotent or append-only, so a crashed pass can simply re-ground.
func (s *GroundingService) recordContradiction(ctx context.Context, m *domain.Memory, score float64, contributions map[domain.EvidenceType]float64) {
	sourceNode := domain.EvidenceSourceNodeID(s.source.Name())

	var evidence []string
	for et, v := range contributions {
		if v < driftSignalFloor {
			evidence = append(evidence, fmt.Sprintf("%s=%.2f", et, v))
		}
	}

	edge := &domain.CausalEdge{
		SourceID: sourceNode,
		TargetID: m.ID,
		Relation: domain.RelationContradicts,
		Strength: domain.ClampStrength(1 - score),
		Evidence: evidence,
	}
	if err := s.graph.AddEdge(ctx, edge); err != nil {
		s.logger.Warn("failed to record contradiction edge",
			zap.String("memory_id", m.ID.String()), zap.Error(err))
	}

	if s.conflicts != nil {
		if err := s.conflicts.OpenGroundingConflict(ctx, m, s.source.Name(), score); err != nil {
			s.logger.Warn("failed to open grounding conflict",
				zap.String("memory_id", m.ID.String()), zap.Error(err))
		}
	}
}

func (s *GroundingService) touchedMemories(ctx context.Context, outcomes []BatchOutcome) []*domain.Memory {
	var touched []*domain.Memory
	for _, o := range outcomes {
		if o.Snapshot == nil || o.Error != "" {
			continue
		}
		m, err := s.memories.Get(ctx, o.MemoryID)
		if err != nil {
			continue
		}
		touched = append(touched, m)
	}
	return touched
}

func (s *GroundingService) newSnapshot(memoryID uuid.UUID, verdict domain.Verdict, score float64, perEvidence map[domain.EvidenceType]float64, sources []string, flagged bool) *domain.GroundingSnapshot {
	return &domain.GroundingSnapshot{
		ID:                   ulid.Make().String(),
		MemoryID:             memoryID,
		Verdict:              verdict,
		Score:                score,
		PerEvidence:          perEvidence,
		DataSourcesConsulted: sources,
		CheckedAt:            s.now(),
		FlaggedForReview:     flagged,
	}
}

func (s *GroundingService) appendSnapshot(ctx context.Context, snap *domain.GroundingSnapshot) error {
	return s.snapshots.Append(ctx, snap)
}

// Snapshots returns a memory's verification history, newest first.
func (s *GroundingService) Snapshots(ctx context.Context, memoryID uuid.UUID, limit int) ([]domain.GroundingSnapshot, error) {
	return s.snapshots.ListByMemory(ctx, memoryID, limit)
}
