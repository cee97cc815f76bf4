package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/arjunp-dev/ledgermind/internal/resilience"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func setupGraphTest() (*GraphService, *mockGraphStore) {
	graphStore := newMockGraphStore()
	budget := resilience.NewBudget(5, zap.NewNop())
	return NewGraphService(graphStore, budget, zap.NewNop()), graphStore
}

func TestGraphService_AddEdge_Validation(t *testing.T) {
	svc, _ := setupGraphTest()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	cases := []struct {
		name string
		edge domain.CausalEdge
	}{
		{"self loop", domain.CausalEdge{SourceID: a, TargetID: a, Relation: domain.RelationCaused, Strength: 0.5}},
		{"unknown relation", domain.CausalEdge{SourceID: a, TargetID: b, Relation: "influences", Strength: 0.5}},
		{"strength above 1", domain.CausalEdge{SourceID: a, TargetID: b, Relation: domain.RelationCaused, Strength: 1.1}},
		{"negative strength", domain.CausalEdge{SourceID: a, TargetID: b, Relation: domain.RelationCaused, Strength: -0.1}},
		{"NaN strength", domain.CausalEdge{SourceID: a, TargetID: b, Relation: domain.RelationCaused, Strength: math.NaN()}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			edge := tc.edge
			if err := svc.AddEdge(ctx, &edge); !errors.Is(err, ErrInvalidEdge) {
				t.Fatalf("expected ErrInvalidEdge, got %v", err)
			}
		})
	}
}

func TestGraphService_AddEdge_Idempotent(t *testing.T) {
	svc, graphStore := setupGraphTest()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	first := &domain.CausalEdge{SourceID: a, TargetID: b, Relation: domain.RelationCaused, Strength: 0.8}
	if err := svc.AddEdge(ctx, first); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	dup := &domain.CausalEdge{SourceID: a, TargetID: b, Relation: domain.RelationCaused, Strength: 0.3}
	if err := svc.AddEdge(ctx, dup); err != nil {
		t.Fatalf("expected duplicate to be a no-op, got %v", err)
	}
	if dup.ID != first.ID {
		t.Fatal("expected duplicate to hydrate the existing edge")
	}
	if graphStore.liveCount() != 1 {
		t.Fatalf("expected 1 live edge, got %d", graphStore.liveCount())
	}

	// A different relation between the same pair is a distinct edge.
	other := &domain.CausalEdge{SourceID: a, TargetID: b, Relation: domain.RelationSupports, Strength: 0.5}
	if err := svc.AddEdge(ctx, other); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if graphStore.liveCount() != 2 {
		t.Fatalf("expected 2 live edges, got %d", graphStore.liveCount())
	}
}

func TestGraphService_Trace_Effects(t *testing.T) {
	svc, _ := setupGraphTest()
	ctx := context.Background()

	// root -> a -> b, root -> c, plus a back-edge b -> root that must not
	// re-enqueue the visited root.
	root, a, b, c := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	for _, e := range []*domain.CausalEdge{
		{SourceID: root, TargetID: a, Relation: domain.RelationCaused, Strength: 0.9},
		{SourceID: root, TargetID: c, Relation: domain.RelationEnabled, Strength: 0.7},
		{SourceID: a, TargetID: b, Relation: domain.RelationTriggeredBy, Strength: 0.8},
		{SourceID: b, TargetID: root, Relation: domain.RelationSupports, Strength: 0.5},
	} {
		if err := svc.AddEdge(ctx, e); err != nil {
			t.Fatalf("add edge: %v", err)
		}
	}

	result, err := svc.Trace(ctx, root, domain.TraceEffects, 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Root != root {
		t.Fatal("wrong root")
	}
	if len(result.Nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(result.Nodes))
	}

	depths := map[uuid.UUID]int{}
	prev := -1
	for _, n := range result.Nodes {
		if n.Depth < prev {
			t.Fatal("nodes must come back in depth order")
		}
		prev = n.Depth
		depths[n.MemoryID] = n.Depth
	}
	if depths[root] != 0 || depths[a] != 1 || depths[c] != 1 || depths[b] != 2 {
		t.Fatalf("wrong depths: %v", depths)
	}
}

func TestGraphService_Trace_DepthLimit(t *testing.T) {
	svc, _ := setupGraphTest()
	ctx := context.Background()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	for i := 0; i < len(ids)-1; i++ {
		_ = svc.AddEdge(ctx, &domain.CausalEdge{SourceID: ids[i], TargetID: ids[i+1], Relation: domain.RelationCaused, Strength: 0.9})
	}

	result, err := svc.Trace(ctx, ids[0], domain.TraceEffects, 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Nodes) != 2 {
		t.Fatalf("expected root plus one hop, got %d nodes", len(result.Nodes))
	}
}

func TestGraphService_Trace_Origins(t *testing.T) {
	svc, _ := setupGraphTest()
	ctx := context.Background()

	cause, effect := uuid.New(), uuid.New()
	_ = svc.AddEdge(ctx, &domain.CausalEdge{SourceID: cause, TargetID: effect, Relation: domain.RelationCaused, Strength: 0.9})

	result, err := svc.Trace(ctx, effect, domain.TraceOrigins, 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Nodes) != 2 || result.Nodes[1].MemoryID != cause {
		t.Fatalf("expected origins trace to reach the cause, got %+v", result.Nodes)
	}
}

func TestGraphService_FindPath_PrefersFewerHops(t *testing.T) {
	svc, _ := setupGraphTest()
	ctx := context.Background()

	// Direct weak edge vs a stronger two-hop route: hop count wins.
	a, b, mid := uuid.New(), uuid.New(), uuid.New()
	_ = svc.AddEdge(ctx, &domain.CausalEdge{SourceID: a, TargetID: b, Relation: domain.RelationCaused, Strength: 0.1})
	_ = svc.AddEdge(ctx, &domain.CausalEdge{SourceID: a, TargetID: mid, Relation: domain.RelationCaused, Strength: 0.9})
	_ = svc.AddEdge(ctx, &domain.CausalEdge{SourceID: mid, TargetID: b, Relation: domain.RelationCaused, Strength: 0.9})

	path, err := svc.FindPath(ctx, a, b, 6)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(path.MemoryIDs) != 2 {
		t.Fatalf("expected the one-hop path, got %v", path.MemoryIDs)
	}
	if path.Strength != 0.1 {
		t.Fatalf("expected strength 0.1, got %v", path.Strength)
	}
}

func TestGraphService_FindPath_TieBreaksByStrength(t *testing.T) {
	svc, _ := setupGraphTest()
	ctx := context.Background()

	// Two two-hop routes; the one with the higher strength product wins.
	a, b, weak, strong := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	_ = svc.AddEdge(ctx, &domain.CausalEdge{SourceID: a, TargetID: weak, Relation: domain.RelationCaused, Strength: 0.5})
	_ = svc.AddEdge(ctx, &domain.CausalEdge{SourceID: weak, TargetID: b, Relation: domain.RelationCaused, Strength: 0.5})
	_ = svc.AddEdge(ctx, &domain.CausalEdge{SourceID: a, TargetID: strong, Relation: domain.RelationEnabled, Strength: 0.9})
	_ = svc.AddEdge(ctx, &domain.CausalEdge{SourceID: strong, TargetID: b, Relation: domain.RelationEnabled, Strength: 0.9})

	path, err := svc.FindPath(ctx, a, b, 6)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(path.MemoryIDs) != 3 || path.MemoryIDs[1] != strong {
		t.Fatalf("expected the stronger route, got %v", path.MemoryIDs)
	}
	if math.Abs(path.Strength-0.81) > 1e-9 {
		t.Fatalf("expected strength 0.81, got %v", path.Strength)
	}
}

func TestGraphService_FindPath_NoPath(t *testing.T) {
	svc, _ := setupGraphTest()
	ctx := context.Background()

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	_ = svc.AddEdge(ctx, &domain.CausalEdge{SourceID: a, TargetID: b, Relation: domain.RelationCaused, Strength: 0.9})

	if _, err := svc.FindPath(ctx, a, c, 6); !errors.Is(err, ErrNoPath) {
		t.Fatalf("expected ErrNoPath, got %v", err)
	}

	// Hop budget cuts off reachable but distant targets.
	_ = svc.AddEdge(ctx, &domain.CausalEdge{SourceID: b, TargetID: c, Relation: domain.RelationCaused, Strength: 0.9})
	if _, err := svc.FindPath(ctx, a, c, 1); !errors.Is(err, ErrNoPath) {
		t.Fatalf("expected ErrNoPath under hop budget, got %v", err)
	}
}

func TestGraphService_FindPath_SameNode(t *testing.T) {
	svc, _ := setupGraphTest()
	a := uuid.New()

	path, err := svc.FindPath(context.Background(), a, a, 6)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(path.MemoryIDs) != 1 || path.Strength != 1 {
		t.Fatalf("expected trivial path, got %+v", path)
	}
}

func TestGraphService_Prune(t *testing.T) {
	svc, graphStore := setupGraphTest()
	ctx := context.Background()

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	_ = svc.AddEdge(ctx, &domain.CausalEdge{SourceID: a, TargetID: b, Relation: domain.RelationCaused, Strength: 0.01})
	_ = svc.AddEdge(ctx, &domain.CausalEdge{SourceID: b, TargetID: c, Relation: domain.RelationCaused, Strength: 0.9})

	pruned, err := svc.Prune(ctx, 0.05)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 edge pruned, got %d", pruned)
	}
	if graphStore.liveCount() != 1 {
		t.Fatalf("expected 1 live edge, got %d", graphStore.liveCount())
	}
}
