package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/arjunp-dev/ledgermind/internal/resilience"
	"github.com/arjunp-dev/ledgermind/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mockMemoryStore implements domain.MemoryStore over in-memory version
// chains. conflictsLeft injects version conflicts into InsertVersion.
type mockMemoryStore struct {
	chains        map[uuid.UUID][]domain.Memory
	conflictsLeft int
	inserts       int
}

func newMockMemoryStore() *mockMemoryStore {
	return &mockMemoryStore{chains: make(map[uuid.UUID][]domain.Memory)}
}

func (m *mockMemoryStore) Create(ctx context.Context, mem *domain.Memory) error {
	mem.Version = 1
	mem.RecordedAt = time.Now()
	mem.TxTime = mem.RecordedAt
	m.chains[mem.ID] = []domain.Memory{*mem}
	return nil
}

func (m *mockMemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	chain, ok := m.chains[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	latest := chain[len(chain)-1]
	return &latest, nil
}

func (m *mockMemoryStore) GetAsOf(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Memory, error) {
	chain, ok := m.chains[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	var found *domain.Memory
	for i := range chain {
		if !chain[i].TxTime.After(at) {
			v := chain[i]
			found = &v
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (m *mockMemoryStore) InsertVersion(ctx context.Context, mem *domain.Memory, expected int64) error {
	m.inserts++
	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		return store.ErrVersionConflict
	}
	chain, ok := m.chains[mem.ID]
	if !ok {
		return store.ErrNotFound
	}
	if chain[len(chain)-1].Version != expected {
		return store.ErrVersionConflict
	}
	mem.Version = expected + 1
	mem.TxTime = time.Now()
	m.chains[mem.ID] = append(chain, *mem)
	return nil
}

func (m *mockMemoryStore) ListVersions(ctx context.Context, id uuid.UUID) ([]domain.Memory, error) {
	chain, ok := m.chains[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]domain.Memory, len(chain))
	copy(out, chain)
	return out, nil
}

func (m *mockMemoryStore) ListByExternalRef(ctx context.Context, ref domain.ExternalRef, limit int) ([]domain.Memory, error) {
	var out []domain.Memory
	for id := range m.chains {
		latest, _ := m.GetByID(ctx, id)
		if latest == nil || latest.Archived {
			continue
		}
		for _, r := range latest.ExternalRefs {
			if r == ref {
				out = append(out, *latest)
				break
			}
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *mockMemoryStore) ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.Memory, error) {
	var out []domain.Memory
	for id := range m.chains {
		latest, _ := m.GetByID(ctx, id)
		if latest != nil && !latest.RecordedAt.Before(since) {
			out = append(out, *latest)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// mockGraphStore implements domain.GraphStore with content-identity
// idempotence, matching the live-edge unique index.
type mockGraphStore struct {
	edges []domain.CausalEdge
}

func newMockGraphStore() *mockGraphStore {
	return &mockGraphStore{}
}

func (g *mockGraphStore) CreateEdge(ctx context.Context, e *domain.CausalEdge) error {
	for i := range g.edges {
		ex := &g.edges[i]
		if ex.PrunedAt == nil && ex.SourceID == e.SourceID && ex.TargetID == e.TargetID && ex.Relation == e.Relation {
			*e = *ex
			return nil
		}
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	g.edges = append(g.edges, *e)
	return nil
}

func (g *mockGraphStore) GetEdge(ctx context.Context, sourceID, targetID uuid.UUID, relation domain.RelationType) (*domain.CausalEdge, error) {
	for i := range g.edges {
		ex := &g.edges[i]
		if ex.PrunedAt == nil && ex.SourceID == sourceID && ex.TargetID == targetID && ex.Relation == relation {
			e := *ex
			return &e, nil
		}
	}
	return nil, store.ErrNotFound
}

func (g *mockGraphStore) EdgesFrom(ctx context.Context, id uuid.UUID) ([]domain.CausalEdge, error) {
	var out []domain.CausalEdge
	for _, e := range g.edges {
		if e.PrunedAt == nil && e.SourceID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (g *mockGraphStore) EdgesTo(ctx context.Context, id uuid.UUID) ([]domain.CausalEdge, error) {
	var out []domain.CausalEdge
	for _, e := range g.edges {
		if e.PrunedAt == nil && e.TargetID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (g *mockGraphStore) UpdateStrength(ctx context.Context, id uuid.UUID, strength float64) error {
	for i := range g.edges {
		if g.edges[i].ID == id && g.edges[i].PrunedAt == nil {
			g.edges[i].Strength = strength
			return nil
		}
	}
	return store.ErrNotFound
}

func (g *mockGraphStore) StampValidated(ctx context.Context, id uuid.UUID, at time.Time) error {
	for i := range g.edges {
		if g.edges[i].ID == id && g.edges[i].PrunedAt == nil {
			t := at
			g.edges[i].ValidatedAt = &t
			return nil
		}
	}
	return store.ErrNotFound
}

func (g *mockGraphStore) Prune(ctx context.Context, minStrength float64) (int64, error) {
	now := time.Now()
	var pruned int64
	for i := range g.edges {
		if g.edges[i].PrunedAt == nil && g.edges[i].Strength < minStrength {
			t := now
			g.edges[i].PrunedAt = &t
			pruned++
		}
	}
	return pruned, nil
}

func (g *mockGraphStore) PruneByMemory(ctx context.Context, memoryID uuid.UUID) (int64, error) {
	now := time.Now()
	var pruned int64
	for i := range g.edges {
		e := &g.edges[i]
		if e.PrunedAt == nil && (e.SourceID == memoryID || e.TargetID == memoryID) {
			t := now
			e.PrunedAt = &t
			pruned++
		}
	}
	return pruned, nil
}

func (g *mockGraphStore) liveCount() int {
	n := 0
	for _, e := range g.edges {
		if e.PrunedAt == nil {
			n++
		}
	}
	return n
}

func newTestRetrier() *resilience.Retrier {
	r := resilience.NewRetrier(4, zap.NewNop())
	r.BaseDelay = time.Microsecond
	r.MaxDelay = time.Millisecond
	return r
}

func setupMemoryTest() (*MemoryService, *mockMemoryStore, *mockGraphStore) {
	memStore := newMockMemoryStore()
	graphStore := newMockGraphStore()
	budget := resilience.NewBudget(5, zap.NewNop())
	svc := NewMemoryService(memStore, graphStore, newTestRetrier(), budget, zap.NewNop())
	return svc, memStore, graphStore
}

func TestMemoryService_Create(t *testing.T) {
	svc, memStore, _ := setupMemoryTest()
	ctx := context.Background()

	m := &domain.Memory{Kind: "decision", Summary: "use pgx for database access", Confidence: 0.9}
	if err := svc.Create(ctx, m); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if m.ID == uuid.Nil {
		t.Fatal("expected memory ID to be set")
	}
	if m.Version != 1 {
		t.Fatalf("expected version 1, got %d", m.Version)
	}
	if m.Importance != domain.ImportanceMedium {
		t.Fatalf("expected default importance medium, got %s", m.Importance)
	}
	if m.ValidFrom.IsZero() {
		t.Fatal("expected valid_from to default to now")
	}
	if len(memStore.chains[m.ID]) != 1 {
		t.Fatal("expected one version in store")
	}
}

func TestMemoryService_Create_Validation(t *testing.T) {
	svc, _, _ := setupMemoryTest()
	ctx := context.Background()

	if err := svc.Create(ctx, &domain.Memory{Confidence: 0.5}); !errors.Is(err, ErrSummaryEmpty) {
		t.Fatalf("expected ErrSummaryEmpty, got %v", err)
	}
	if err := svc.Create(ctx, &domain.Memory{Summary: "x", Confidence: 1.5}); !errors.Is(err, ErrInvalidConfidence) {
		t.Fatalf("expected ErrInvalidConfidence, got %v", err)
	}
	m := &domain.Memory{Summary: "x", Confidence: 0.5, Importance: "urgent"}
	if err := svc.Create(ctx, m); !errors.Is(err, ErrInvalidImportance) {
		t.Fatalf("expected ErrInvalidImportance, got %v", err)
	}
}

func TestMemoryService_Update_AppendsVersion(t *testing.T) {
	svc, memStore, _ := setupMemoryTest()
	ctx := context.Background()

	m := &domain.Memory{Kind: "fact", Summary: "handlers live in internal/api", Confidence: 0.7}
	_ = svc.Create(ctx, m)

	newSummary := "handlers live in internal/api/handlers"
	updated, err := svc.Update(ctx, m.ID, domain.MemoryPatch{Summary: &newSummary})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if updated.Summary != newSummary {
		t.Fatalf("expected updated summary, got %q", updated.Summary)
	}
	if updated.RecordedAt != m.RecordedAt {
		t.Fatal("recorded_at must not move on update")
	}

	chain := memStore.chains[m.ID]
	if len(chain) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(chain))
	}
	if chain[0].Summary == newSummary {
		t.Fatal("prior version must be preserved untouched")
	}
}

func TestMemoryService_Update_RetriesVersionConflict(t *testing.T) {
	svc, memStore, _ := setupMemoryTest()
	ctx := context.Background()

	m := &domain.Memory{Kind: "fact", Summary: "retry me", Confidence: 0.5}
	_ = svc.Create(ctx, m)

	memStore.conflictsLeft = 2
	conf := 0.6
	updated, err := svc.Update(ctx, m.ID, domain.MemoryPatch{Confidence: &conf})
	if err != nil {
		t.Fatalf("expected conflict to be retried away, got %v", err)
	}
	if updated.Confidence != 0.6 {
		t.Fatalf("expected confidence 0.6, got %v", updated.Confidence)
	}
	if memStore.inserts != 3 {
		t.Fatalf("expected 3 insert attempts, got %d", memStore.inserts)
	}
}

func TestMemoryService_Update_ExhaustsRetries(t *testing.T) {
	svc, memStore, _ := setupMemoryTest()
	ctx := context.Background()

	m := &domain.Memory{Kind: "fact", Summary: "never wins", Confidence: 0.5}
	_ = svc.Create(ctx, m)

	memStore.conflictsLeft = 100
	conf := 0.6
	_, err := svc.Update(ctx, m.ID, domain.MemoryPatch{Confidence: &conf})
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict after exhaustion, got %v", err)
	}
}

func TestMemoryService_GetAsOf(t *testing.T) {
	svc, memStore, _ := setupMemoryTest()
	ctx := context.Background()

	m := &domain.Memory{Kind: "fact", Summary: "original", Confidence: 0.5}
	_ = svc.Create(ctx, m)

	// Force distinguishable tx times.
	memStore.chains[m.ID][0].TxTime = time.Now().Add(-2 * time.Hour)
	between := time.Now().Add(-time.Hour)

	revised := "revised"
	if _, err := svc.Update(ctx, m.ID, domain.MemoryPatch{Summary: &revised}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := svc.GetAsOf(ctx, m.ID, between)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Summary != "original" {
		t.Fatalf("expected the pre-update version, got %q", got.Summary)
	}

	latest, _ := svc.Get(ctx, m.ID)
	if latest.Summary != "revised" {
		t.Fatalf("expected latest version, got %q", latest.Summary)
	}

	if _, err := svc.GetAsOf(ctx, m.ID, time.Now().Add(-3*time.Hour)); !errors.Is(err, ErrMemoryNotFound) {
		t.Fatalf("expected ErrMemoryNotFound before first version, got %v", err)
	}
}

func TestMemoryService_CloseValidTime(t *testing.T) {
	svc, _, _ := setupMemoryTest()
	ctx := context.Background()

	m := &domain.Memory{Kind: "fact", Summary: "valid for a while", Confidence: 0.5}
	_ = svc.Create(ctx, m)

	until := time.Now()
	closed, err := svc.CloseValidTime(ctx, m.ID, until)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if closed.ValidUntil == nil || !closed.ValidUntil.Equal(until) {
		t.Fatal("expected valid_until to be set")
	}

	// A closed interval never reopens, and never re-closes.
	if _, err := svc.CloseValidTime(ctx, m.ID, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double close, got %v", err)
	}
}

func TestMemoryService_CloseValidTime_BeforeValidFrom(t *testing.T) {
	svc, _, _ := setupMemoryTest()
	ctx := context.Background()

	m := &domain.Memory{Kind: "fact", Summary: "born now", Confidence: 0.5}
	_ = svc.Create(ctx, m)

	if _, err := svc.CloseValidTime(ctx, m.ID, m.ValidFrom.Add(-time.Hour)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMemoryService_Archive_PrunesEdges(t *testing.T) {
	svc, _, graphStore := setupMemoryTest()
	ctx := context.Background()

	m := &domain.Memory{Kind: "fact", Summary: "to be archived", Confidence: 0.5}
	_ = svc.Create(ctx, m)

	other := uuid.New()
	_ = graphStore.CreateEdge(ctx, &domain.CausalEdge{SourceID: m.ID, TargetID: other, Relation: domain.RelationCaused, Strength: 0.8})
	_ = graphStore.CreateEdge(ctx, &domain.CausalEdge{SourceID: other, TargetID: m.ID, Relation: domain.RelationSupports, Strength: 0.6})

	archived, err := svc.Archive(ctx, m.ID, "superseded by newer scan")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !archived.Archived || archived.ArchiveReason == "" {
		t.Fatal("expected archived flag and reason")
	}
	if graphStore.liveCount() != 0 {
		t.Fatalf("expected all edges pruned, %d live", graphStore.liveCount())
	}

	if _, err := svc.Archive(ctx, m.ID, "again"); !errors.Is(err, ErrMemoryArchived) {
		t.Fatalf("expected ErrMemoryArchived, got %v", err)
	}
}

func TestMemoryService_AdjustConfidence(t *testing.T) {
	svc, _, _ := setupMemoryTest()
	ctx := context.Background()

	m := &domain.Memory{Kind: "fact", Summary: "adjustable", Confidence: 0.95}
	_ = svc.Create(ctx, m)

	up, err := svc.AdjustConfidence(ctx, m.ID, domain.AdjustIncrease, 0.1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if up.Confidence != 1 {
		t.Fatalf("expected clamp at 1, got %v", up.Confidence)
	}

	down, err := svc.AdjustConfidence(ctx, m.ID, domain.AdjustSet, 0.2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if down.Confidence != 0.2 {
		t.Fatalf("expected set to lower to 0.2, got %v", down.Confidence)
	}

	// Set never raises.
	same, err := svc.AdjustConfidence(ctx, m.ID, domain.AdjustSet, 0.9)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if same.Confidence != 0.2 {
		t.Fatalf("expected set to leave 0.2 alone, got %v", same.Confidence)
	}

	before := same.Version
	noop, err := svc.AdjustConfidence(ctx, m.ID, domain.AdjustNoChange, 0.5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if noop.Version != before {
		t.Fatal("no_change must not write a version")
	}

	// Unknown modes are rejected before anything is written.
	if _, err := svc.AdjustConfidence(ctx, m.ID, "boost", 0.5); !errors.Is(err, ErrInvalidAdjustMode) {
		t.Fatalf("expected ErrInvalidAdjustMode, got %v", err)
	}
	got, _ := svc.Get(ctx, m.ID)
	if got.Version != before {
		t.Fatal("a rejected mode must not write a version")
	}
}

func TestMemoryService_Get_NotFound(t *testing.T) {
	svc, _, _ := setupMemoryTest()
	if _, err := svc.Get(context.Background(), uuid.New()); !errors.Is(err, ErrMemoryNotFound) {
		t.Fatalf("expected ErrMemoryNotFound, got %v", err)
	}
}
