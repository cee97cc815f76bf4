package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/arjunp-dev/ledgermind/internal/store"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

var (
	ErrConflictNotFound  = errors.New("conflict not found")
	ErrConflictResolved  = errors.New("conflict already resolved")
	ErrInvalidStrategy   = errors.New("invalid resolution strategy")
	ErrStrategyNotViable = errors.New("strategy not viable for this conflict")
)

const (
	// Similarity below this between same-topic memories implies divergent
	// claims.
	DivergenceSimilarityCeiling = 0.3

	// Automatic resolution gates.
	confidenceGapFloor = 0.3
	newerWinsAgeGap    = 30 * 24 * time.Hour
	newerWinsMinConf   = 0.6

	autoResolveBatch = 50
)

// ConflictService detects contradictory memories and applies or proposes
// resolutions. Detection groups candidates by topic, then flags pairs via
// the negation check or a low collaborator similarity score.
type ConflictService struct {
	memories   *MemoryService
	conflicts  domain.ConflictStore
	graph      *GraphService
	similarity domain.SimilarityProvider
	logger     *zap.Logger

	now func() time.Time
}

func NewConflictService(memories *MemoryService, conflicts domain.ConflictStore, graph *GraphService, similarity domain.SimilarityProvider, logger *zap.Logger) *ConflictService {
	return &ConflictService{
		memories:   memories,
		conflicts:  conflicts,
		graph:      graph,
		similarity: similarity,
		logger:     logger,
		now:        time.Now,
	}
}

// Detect loads the candidate memories, groups them by topic (caller-given
// keys win; otherwise connected components of external-ref overlap) and
// returns one Conflict per contradictory pair. Detected conflicts are
// persisted immediately.
func (s *ConflictService) Detect(ctx context.Context, ids []uuid.UUID, topicKeys map[uuid.UUID]string) ([]*domain.Conflict, error) {
	var memories []*domain.Memory
	for _, id := range ids {
		m, err := s.memories.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrMemoryNotFound) {
				continue
			}
			return nil, err
		}
		if m.Archived {
			continue
		}
		memories = append(memories, m)
	}

	var found []*domain.Conflict
	for _, group := range groupByTopic(memories, topicKeys) {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				c := s.evaluatePair(ctx, group[i], group[j])
				if c == nil {
					continue
				}
				if err := s.conflicts.Create(ctx, c); err != nil {
					return nil, fmt.Errorf("persist conflict: %w", err)
				}
				found = append(found, c)
			}
		}
	}

	if len(found) > 0 {
		s.logger.Info("conflicts detected", zap.Int("count", len(found)))
	}
	return found, nil
}

// evaluatePair decides whether two same-topic memories conflict and of
// what kind. Negating claims over disjoint scopes are a scope overlap,
// not a contradiction: both can stand in their own scope.
func (s *ConflictService) evaluatePair(ctx context.Context, a, b *domain.Memory) *domain.Conflict {
	if refersAcrossSupersession(a, b) {
		return s.newConflict(a, b, domain.ConflictSupersession,
			"one memory supersedes the other but both remain open")
	}

	if summariesContradict(a.Summary, b.Summary) {
		if domain.RefsDisjoint(a.ExternalRefs, b.ExternalRefs) {
			return s.newConflict(a, b, domain.ConflictScopeOverlap,
				"opposing claims over disjoint scopes")
		}
		return s.newConflict(a, b, domain.ConflictContradiction,
			"summaries assert opposite polarity for the same subject")
	}

	if s.similarity != nil {
		sim, err := s.similarity.Similarity(ctx, a, b)
		if err == nil && sim < DivergenceSimilarityCeiling {
			return s.newConflict(a, b, domain.ConflictContradiction,
				fmt.Sprintf("same topic but similarity %.2f implies divergent claims", sim))
		}
	}
	return nil
}

// ResolveResult is what Resolve hands back: either an applied resolution
// or, when only manual review can settle it, the open options.
type ResolveResult struct {
	Conflict *domain.Conflict            `json:"conflict"`
	Applied  *domain.Resolution          `json:"applied,omitempty"`
	Options  []domain.ResolutionStrategy `json:"options,omitempty"`
}

// Resolve applies the given strategy, or when none is given, tries the
// automatic cascade: higher_confidence, newer_wins, scope_specific, else
// the conflict stays open with the options returned for manual choice.
func (s *ConflictService) Resolve(ctx context.Context, conflictID string, strategy domain.ResolutionStrategy) (*ResolveResult, error) {
	c, err := s.conflicts.GetByID(ctx, conflictID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrConflictNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.Resolution != nil {
		return nil, ErrConflictResolved
	}
	if len(c.MemoryIDs) < 2 {
		return nil, fmt.Errorf("conflict %s has fewer than two parties", c.ID)
	}

	a, errA := s.memories.Get(ctx, c.MemoryIDs[0])
	b, errB := s.memories.Get(ctx, c.MemoryIDs[1])
	if errA != nil || errB != nil {
		// A grounding conflict's second party is the evidence-source
		// node, not a memory; those always need manual review.
		return &ResolveResult{Conflict: c, Options: []domain.ResolutionStrategy{domain.StrategyManual}}, nil
	}

	resolvedBy := domain.ResolvedManual
	if strategy == "" {
		strategy = pickStrategy(a, b, s.now())
		resolvedBy = domain.ResolvedAutomatic
	} else if !domain.ValidResolutionStrategy(string(strategy)) {
		return nil, ErrInvalidStrategy
	}

	if strategy == domain.StrategyManual {
		return &ResolveResult{
			Conflict: c,
			Options: []domain.ResolutionStrategy{
				domain.StrategyHigherConfidence,
				domain.StrategyNewerWins,
				domain.StrategyScopeSpecific,
			},
		}, nil
	}

	winner, loser, err := applyStrategy(strategy, a, b)
	if err != nil {
		return nil, err
	}

	res := domain.Resolution{
		Strategy:   strategy,
		ResolvedBy: resolvedBy,
		ResolvedAt: s.now(),
	}
	if winner != nil {
		id := winner.ID
		res.WinnerID = &id
		if err := s.supersede(ctx, winner, loser); err != nil {
			return nil, err
		}
	}

	if err := s.conflicts.Resolve(ctx, c.ID, res); err != nil {
		return nil, err
	}
	c.Resolution = &res

	s.logger.Info("conflict resolved",
		zap.String("conflict_id", c.ID),
		zap.String("strategy", string(strategy)),
		zap.String("resolved_by", string(resolvedBy)))
	return &ResolveResult{Conflict: c, Applied: &res}, nil
}

// AutoResolveOpen attempts the automatic cascade over open conflicts;
// conflicts that need manual review stay open. Returns how many closed.
func (s *ConflictService) AutoResolveOpen(ctx context.Context) (int, error) {
	open, err := s.conflicts.ListOpen(ctx, autoResolveBatch)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, c := range open {
		result, err := s.Resolve(ctx, c.ID, "")
		if err != nil {
			s.logger.Warn("auto resolution failed",
				zap.String("conflict_id", c.ID), zap.Error(err))
			continue
		}
		if result.Applied != nil {
			resolved++
		}
	}
	return resolved, nil
}

func (s *ConflictService) ListOpen(ctx context.Context, limit int) ([]domain.Conflict, error) {
	return s.conflicts.ListOpen(ctx, limit)
}

// OpenGroundingConflict records a conflict between a memory and the
// ground-truth source that contradicted it. Re-grounding a memory that is
// still contradicted finds the existing open conflict and adds nothing.
func (s *ConflictService) OpenGroundingConflict(ctx context.Context, m *domain.Memory, sourceName string, score float64) error {
	parties := []uuid.UUID{m.ID, domain.EvidenceSourceNodeID(sourceName)}
	open, err := s.conflicts.HasOpen(ctx, parties)
	if err != nil {
		return err
	}
	if open {
		return nil
	}

	c := &domain.Conflict{
		ID:          ulid.Make().String(),
		MemoryIDs:   parties,
		Kind:        domain.ConflictContradiction,
		Description: fmt.Sprintf("ground truth contradicts memory (score %.2f, source %s)", score, sourceName),
		DetectedAt:  s.now(),
	}
	return s.conflicts.Create(ctx, c)
}

// supersede closes the loser's valid time, stamps the supersession
// pointers on both sides and records a supersedes edge.
func (s *ConflictService) supersede(ctx context.Context, winner, loser *domain.Memory) error {
	if _, err := s.memories.CloseValidTime(ctx, loser.ID, s.now()); err != nil && !errors.Is(err, ErrInvalidTransition) {
		return fmt.Errorf("close loser valid time: %w", err)
	}
	winnerID, loserID := winner.ID, loser.ID
	if _, err := s.memories.Update(ctx, loserID, domain.MemoryPatch{SupersededBy: &winnerID}); err != nil {
		return err
	}
	if _, err := s.memories.Update(ctx, winnerID, domain.MemoryPatch{Supersedes: &loserID}); err != nil {
		return err
	}

	edge := &domain.CausalEdge{
		SourceID: winnerID,
		TargetID: loserID,
		Relation: domain.RelationSupersedes,
		Strength: 1,
	}
	if err := s.graph.AddEdge(ctx, edge); err != nil {
		s.logger.Warn("failed to add supersedes edge",
			zap.String("winner", winnerID.String()), zap.Error(err))
	}
	return nil
}

// pickStrategy is the automatic cascade from the resolution policy.
func pickStrategy(a, b *domain.Memory, now time.Time) domain.ResolutionStrategy {
	gap := a.Confidence - b.Confidence
	if gap < 0 {
		gap = -gap
	}
	if gap > confidenceGapFloor {
		return domain.StrategyHigherConfidence
	}

	newer, _ := newerOlder(a, b)
	ageGap := a.RecordedAt.Sub(b.RecordedAt)
	if ageGap < 0 {
		ageGap = -ageGap
	}
	if ageGap > newerWinsAgeGap && newer.Confidence > newerWinsMinConf {
		return domain.StrategyNewerWins
	}

	if domain.RefsDisjoint(a.ExternalRefs, b.ExternalRefs) {
		return domain.StrategyScopeSpecific
	}
	return domain.StrategyManual
}

// applyStrategy names the winner and loser under a strategy, or errors
// when the strategy's precondition does not hold.
func applyStrategy(strategy domain.ResolutionStrategy, a, b *domain.Memory) (winner, loser *domain.Memory, err error) {
	switch strategy {
	case domain.StrategyHigherConfidence:
		if a.Confidence == b.Confidence {
			return nil, nil, ErrStrategyNotViable
		}
		if a.Confidence > b.Confidence {
			return a, b, nil
		}
		return b, a, nil

	case domain.StrategyNewerWins:
		newer, older := newerOlder(a, b)
		return newer, older, nil

	case domain.StrategyScopeSpecific:
		if !domain.RefsDisjoint(a.ExternalRefs, b.ExternalRefs) {
			return nil, nil, ErrStrategyNotViable
		}
		// Both stand, each in its own scope.
		return nil, nil, nil
	}
	return nil, nil, ErrInvalidStrategy
}

func newerOlder(a, b *domain.Memory) (*domain.Memory, *domain.Memory) {
	if a.RecordedAt.After(b.RecordedAt) {
		return a, b
	}
	return b, a
}

func refersAcrossSupersession(a, b *domain.Memory) bool {
	return (a.Supersedes != nil && *a.Supersedes == b.ID && b.ValidUntil == nil) ||
		(b.Supersedes != nil && *b.Supersedes == a.ID && a.ValidUntil == nil)
}

func (s *ConflictService) newConflict(a, b *domain.Memory, kind domain.ConflictKind, description string) *domain.Conflict {
	return &domain.Conflict{
		ID:          ulid.Make().String(),
		MemoryIDs:   []uuid.UUID{a.ID, b.ID},
		Kind:        kind,
		Description: description,
		DetectedAt:  s.now(),
	}
}

// groupByTopic partitions memories into topic groups. Caller-supplied keys
// take precedence; the rest fall into connected components of the
// ref-overlap relation (sharing any external ref joins two memories).
func groupByTopic(memories []*domain.Memory, topicKeys map[uuid.UUID]string) [][]*domain.Memory {
	byKey := map[string][]*domain.Memory{}
	var keyless []*domain.Memory
	for _, m := range memories {
		if key, ok := topicKeys[m.ID]; ok && key != "" {
			byKey[key] = append(byKey[key], m)
		} else {
			keyless = append(keyless, m)
		}
	}

	var groups [][]*domain.Memory
	for _, g := range byKey {
		groups = append(groups, g)
	}
	groups = append(groups, refComponents(keyless)...)
	return groups
}

// refComponents is union-find over shared external refs.
func refComponents(memories []*domain.Memory) [][]*domain.Memory {
	parent := make([]int, len(memories))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) { parent[find(i)] = find(j) }

	owner := map[domain.ExternalRef]int{}
	for i, m := range memories {
		for _, ref := range m.ExternalRefs {
			if j, ok := owner[ref]; ok {
				union(i, j)
			} else {
				owner[ref] = i
			}
		}
	}

	byRoot := map[int][]*domain.Memory{}
	for i, m := range memories {
		root := find(i)
		byRoot[root] = append(byRoot[root], m)
	}

	var groups [][]*domain.Memory
	for _, g := range byRoot {
		groups = append(groups, g)
	}
	return groups
}
