package service

import (
	"context"
	"errors"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/arjunp-dev/ledgermind/internal/resilience"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidEdge is a structural violation in the caller: self-loop,
	// out-of-range strength, or unknown relation.
	ErrInvalidEdge = errors.New("invalid edge")
	ErrNoPath      = errors.New("no path")
)

const (
	DefaultMaxDepth       = 5
	DefaultMaxHops        = 6
	DefaultPruneThreshold = 0.05

	depGraphStore = "graph_store"
)

// GraphService owns causal-edge validation and traversal. Traversal walks
// the store's neighbor queries breadth-first, the same shape as a recall
// hop expansion.
type GraphService struct {
	graph  domain.GraphStore
	budget *resilience.Budget
	logger *zap.Logger
}

func NewGraphService(graph domain.GraphStore, budget *resilience.Budget, logger *zap.Logger) *GraphService {
	return &GraphService{graph: graph, budget: budget, logger: logger}
}

// AddEdge validates and stores an edge. Exact duplicates on
// (source, target, relation) are a no-op, not an error.
func (s *GraphService) AddEdge(ctx context.Context, edge *domain.CausalEdge) error {
	if edge.SourceID == edge.TargetID {
		return ErrInvalidEdge
	}
	if !domain.ValidRelationType(string(edge.Relation)) {
		return ErrInvalidEdge
	}
	if edge.Strength != edge.Strength || edge.Strength < 0 || edge.Strength > 1 {
		return ErrInvalidEdge
	}

	return s.budget.Do(ctx, depGraphStore, func(ctx context.Context) error {
		return s.graph.CreateEdge(ctx, edge)
	})
}

func (s *GraphService) EdgesFrom(ctx context.Context, id uuid.UUID) ([]domain.CausalEdge, error) {
	return s.graph.EdgesFrom(ctx, id)
}

func (s *GraphService) EdgesTo(ctx context.Context, id uuid.UUID) ([]domain.CausalEdge, error) {
	return s.graph.EdgesTo(ctx, id)
}

// Trace walks the graph breadth-first from root, following incoming edges
// for origins and outgoing edges for effects, up to maxDepth hops. Visited
// nodes are deduplicated; nodes come back ordered by depth.
func (s *GraphService) Trace(ctx context.Context, root uuid.UUID, direction domain.TraceDirection, maxDepth int) (*domain.TraceResult, error) {
	if !domain.ValidTraceDirection(string(direction)) {
		return nil, ErrInvalidEdge
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	result := &domain.TraceResult{
		Root:  root,
		Nodes: []domain.TraceNode{{MemoryID: root, Depth: 0}},
	}
	visited := map[uuid.UUID]bool{root: true}
	frontier := []uuid.UUID{root}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []uuid.UUID
		for _, id := range frontier {
			edges, err := s.neighbors(ctx, id, direction)
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				neighbor := edge.TargetID
				if direction == domain.TraceOrigins {
					neighbor = edge.SourceID
				}
				result.Edges = append(result.Edges, edge)
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				result.Nodes = append(result.Nodes, domain.TraceNode{MemoryID: neighbor, Depth: depth})
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return result, nil
}

// FindPath returns the hop-minimal path from one memory to another,
// tie-broken toward the maximum product of edge strengths. BFS by level;
// within a level a node's best incoming path may be improved by a
// same-level alternative before the level is expanded.
func (s *GraphService) FindPath(ctx context.Context, from, to uuid.UUID, maxHops int) (*domain.Path, error) {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	if from == to {
		return &domain.Path{MemoryIDs: []uuid.UUID{from}, Strength: 1}, nil
	}

	best := map[uuid.UUID]arrival{from: {strength: 1}}
	frontier := []uuid.UUID{from}

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		reached := map[uuid.UUID]arrival{}
		for _, id := range frontier {
			edges, err := s.graph.EdgesFrom(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				if _, settled := best[edge.TargetID]; settled {
					continue
				}
				strength := best[id].strength * edge.Strength
				cur, seen := reached[edge.TargetID]
				if !seen || strength > cur.strength {
					reached[edge.TargetID] = arrival{strength: strength, prev: id, edge: edge}
				}
			}
		}

		frontier = frontier[:0]
		for id, a := range reached {
			best[id] = a
			frontier = append(frontier, id)
		}

		if a, ok := best[to]; ok {
			return s.assemblePath(from, to, best, a), nil
		}
	}
	return nil, ErrNoPath
}

// arrival records the best-known way to reach a node during path search.
type arrival struct {
	strength float64
	prev     uuid.UUID
	edge     domain.CausalEdge
}

func (s *GraphService) assemblePath(from, to uuid.UUID, best map[uuid.UUID]arrival, final arrival) *domain.Path {
	path := &domain.Path{Strength: final.strength}
	var ids []uuid.UUID
	var edges []domain.CausalEdge
	for cur := to; cur != from; {
		a := best[cur]
		ids = append(ids, cur)
		edges = append(edges, a.edge)
		cur = a.prev
	}
	ids = append(ids, from)

	// Reverse into from→to order.
	for i := len(ids) - 1; i >= 0; i-- {
		path.MemoryIDs = append(path.MemoryIDs, ids[i])
	}
	for i := len(edges) - 1; i >= 0; i-- {
		path.Edges = append(path.Edges, edges[i])
	}
	return path
}

// Prune soft-deletes edges whose strength decayed below the floor.
func (s *GraphService) Prune(ctx context.Context, minStrength float64) (int64, error) {
	if minStrength <= 0 {
		minStrength = DefaultPruneThreshold
	}
	pruned, err := s.graph.Prune(ctx, minStrength)
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		s.logger.Info("pruned weak edges",
			zap.Float64("min_strength", minStrength),
			zap.Int64("pruned", pruned))
	}
	return pruned, nil
}

func (s *GraphService) neighbors(ctx context.Context, id uuid.UUID, direction domain.TraceDirection) ([]domain.CausalEdge, error) {
	if direction == domain.TraceOrigins {
		return s.graph.EdgesTo(ctx, id)
	}
	return s.graph.EdgesFrom(ctx, id)
}
