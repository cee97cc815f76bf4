package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// InferenceThreshold is the combined signal strength a candidate pair
	// must exceed before an edge is written.
	InferenceThreshold = 0.5

	// Signal weights; they sum to 1 so combined strength stays in [0,1].
	temporalSignalWeight   = 0.2
	refOverlapSignalWeight = 0.3
	mentionSignalWeight    = 0.3
	similaritySignalWeight = 0.2

	// temporalWindow is the creation-time gap at which the temporal
	// proximity signal has decayed to half.
	temporalWindow = 24 * time.Hour

	// refNeighborLimit caps how many ref-sharing neighbors each touched
	// memory pulls into the candidate set.
	refNeighborLimit = 10
)

// InferenceService discovers implicit causal edges after a grounding or
// consolidation pass. Candidate pairs come from the touched set plus
// memories sharing external refs with it; four independent signals are
// fused by weighted sum and only pairs above the threshold become edges.
type InferenceService struct {
	memories   domain.MemoryStore
	graph      *GraphService
	similarity domain.SimilarityProvider
	threshold  float64
	logger     *zap.Logger
}

func NewInferenceService(memories domain.MemoryStore, graph *GraphService, similarity domain.SimilarityProvider, logger *zap.Logger) *InferenceService {
	return &InferenceService{
		memories:   memories,
		graph:      graph,
		similarity: similarity,
		threshold:  InferenceThreshold,
		logger:     logger,
	}
}

func (s *InferenceService) SetThreshold(t float64) { s.threshold = t }

// InferForTouched evaluates every candidate pair reachable from the
// touched memories and writes the edges that clear the threshold.
// Edge writes are idempotent, so concurrent inference over overlapping
// sets is safe.
func (s *InferenceService) InferForTouched(ctx context.Context, touched []*domain.Memory) (int, error) {
	candidates := s.gatherCandidates(ctx, touched)

	added := 0
	seen := map[[2]uuid.UUID]struct{}{}
	for _, m := range touched {
		for _, other := range candidates {
			if other.ID == m.ID || other.Archived {
				continue
			}
			source, target := orderByRecording(m, other)
			key := [2]uuid.UUID{source.ID, target.ID}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			strength := s.combinedStrength(ctx, source, target)
			if strength <= s.threshold {
				continue
			}

			edge := &domain.CausalEdge{
				SourceID: source.ID,
				TargetID: target.ID,
				Relation: inferRelation(source, target),
				Strength: domain.ClampStrength(strength),
				Inferred: true,
			}
			if err := s.graph.AddEdge(ctx, edge); err != nil {
				s.logger.Warn("failed to add inferred edge",
					zap.String("source", source.ID.String()),
					zap.String("target", target.ID.String()),
					zap.Error(err))
				continue
			}
			added++
		}
	}

	if added > 0 {
		s.logger.Info("causal inference pass complete",
			zap.Int("touched", len(touched)),
			zap.Int("edges_added", added))
	}
	return added, nil
}

// gatherCandidates is the touched set plus every live memory sharing an
// external ref with it, deduplicated.
func (s *InferenceService) gatherCandidates(ctx context.Context, touched []*domain.Memory) []*domain.Memory {
	byID := make(map[uuid.UUID]*domain.Memory, len(touched))
	for _, m := range touched {
		byID[m.ID] = m
	}
	for _, m := range touched {
		for _, ref := range m.ExternalRefs {
			neighbors, err := s.memories.ListByExternalRef(ctx, ref, refNeighborLimit)
			if err != nil {
				s.logger.Warn("ref neighbor lookup failed",
					zap.String("ref", ref.Key), zap.Error(err))
				continue
			}
			for i := range neighbors {
				n := neighbors[i]
				if _, seen := byID[n.ID]; !seen {
					byID[n.ID] = &n
				}
			}
		}
	}

	out := make([]*domain.Memory, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	return out
}

func (s *InferenceService) combinedStrength(ctx context.Context, a, b *domain.Memory) float64 {
	temporal := temporalProximity(a.RecordedAt, b.RecordedAt)
	overlap := domain.RefOverlap(a.ExternalRefs, b.ExternalRefs)
	mention := explicitMention(a, b)

	sim := 0.0
	if s.similarity != nil {
		if v, err := s.similarity.Similarity(ctx, a, b); err == nil {
			sim = v
		}
	}

	combined := temporalSignalWeight*temporal +
		refOverlapSignalWeight*overlap +
		mentionSignalWeight*mention +
		similaritySignalWeight*sim
	if combined != combined {
		return 0
	}
	return combined
}

// temporalProximity halves for every temporalWindow of creation-time gap.
func temporalProximity(a, b time.Time) float64 {
	gap := a.Sub(b)
	if gap < 0 {
		gap = -gap
	}
	return math.Pow(0.5, gap.Hours()/temporalWindow.Hours())
}

// explicitMention fires when one summary cites the other memory's id.
func explicitMention(a, b *domain.Memory) float64 {
	if strings.Contains(a.Summary, b.ID.String()) || strings.Contains(b.Summary, a.ID.String()) {
		return 1
	}
	return 0
}

func orderByRecording(a, b *domain.Memory) (source, target *domain.Memory) {
	if b.RecordedAt.Before(a.RecordedAt) {
		return b, a
	}
	return a, b
}

// kindRelations maps (source kind, target kind) pairs with a conventional
// causal reading. Kinds are open-ended, so this only covers the common
// vocabulary; everything else falls through to the lexical cues.
var kindRelations = map[[2]string]domain.RelationType{
	{"incident", "decision"}:   domain.RelationTriggeredBy,
	{"error", "decision"}:      domain.RelationTriggeredBy,
	{"decision", "convention"}: domain.RelationCaused,
	{"decision", "pattern"}:    domain.RelationCaused,
	{"constraint", "decision"}: domain.RelationEnabled,
	{"fact", "insight"}:        domain.RelationDerivedFrom,
	{"pattern", "insight"}:     domain.RelationDerivedFrom,
}

// inferRelation picks the edge type for an inferred pair: negation cues
// win, then the kind-pair table, then lexical causality cues in the target
// summary. Unresolvable pairs default to supports.
func inferRelation(source, target *domain.Memory) domain.RelationType {
	if summariesContradict(source.Summary, target.Summary) {
		return domain.RelationContradicts
	}
	if rel, ok := kindRelations[[2]string{source.Kind, target.Kind}]; ok {
		return rel
	}

	lower := strings.ToLower(target.Summary)
	switch {
	case strings.Contains(lower, "because") || strings.Contains(lower, "due to"):
		return domain.RelationDerivedFrom
	case strings.Contains(lower, "caused") || strings.Contains(lower, "led to"):
		return domain.RelationCaused
	case strings.Contains(lower, "prevent") || strings.Contains(lower, "blocks"):
		return domain.RelationPrevented
	case strings.Contains(lower, "enabled") || strings.Contains(lower, "allows"):
		return domain.RelationEnabled
	case strings.Contains(lower, "triggered"):
		return domain.RelationTriggeredBy
	case strings.Contains(lower, "replaces") || strings.Contains(lower, "supersedes"):
		return domain.RelationSupersedes
	}
	return domain.RelationSupports
}
