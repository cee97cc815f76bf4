package store

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/google/uuid"
)

func TestNonNullSubstitutions(t *testing.T) {
	if got := nonNullStrings(nil); got == nil || len(got) != 0 {
		t.Fatalf("nil strings must become an empty slice, got %#v", got)
	}
	if got := nonNullRefs(nil); got == nil || len(got) != 0 {
		t.Fatalf("nil refs must become an empty slice, got %#v", got)
	}
	if got := nonNullEvidence(nil); got == nil || len(got) != 0 {
		t.Fatalf("nil evidence must become an empty map, got %#v", got)
	}

	// Non-nil values pass through untouched.
	s := []string{"sig:abc"}
	if got := nonNullStrings(s); !reflect.DeepEqual(got, s) {
		t.Fatalf("got %#v, want %#v", got, s)
	}
	refs := []domain.ExternalRef{{Kind: domain.RefFile, Key: "a.go"}}
	if got := nonNullRefs(refs); !reflect.DeepEqual(got, refs) {
		t.Fatalf("got %#v, want %#v", got, refs)
	}
	ev := map[domain.EvidenceType]float64{domain.EvidenceFilePresence: 0.9}
	if got := nonNullEvidence(ev); !reflect.DeepEqual(got, ev) {
		t.Fatalf("got %#v, want %#v", got, ev)
	}
}

// The jsonb columns and the API surface both go through encoding/json;
// these round trips must lose nothing, nanosecond timestamps included.

func TestMemoryRoundTrip(t *testing.T) {
	until := time.Date(2026, 3, 2, 9, 30, 0, 987654321, time.UTC)
	superseder := uuid.New()
	in := domain.Memory{
		ID:            uuid.New(),
		Kind:          "decision",
		Summary:       "retry version conflicts with backoff",
		Confidence:    0.8517364,
		Importance:    domain.ImportanceHigh,
		RecordedAt:    time.Date(2026, 1, 15, 12, 0, 0, 123456789, time.UTC),
		ValidFrom:     time.Date(2026, 1, 15, 12, 0, 0, 123456789, time.UTC),
		ValidUntil:    &until,
		Archived:      true,
		ArchiveReason: "superseded in review",
		SupersededBy:  &superseder,
		ExternalRefs: []domain.ExternalRef{
			{Kind: domain.RefFile, Key: "internal/store/memory.go"},
			{Kind: domain.RefPattern, Key: "optimistic-concurrency"},
		},
		Version: 7,
		TxTime:  time.Date(2026, 3, 2, 9, 30, 0, 1, time.UTC),
	}

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out domain.Memory
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip lost data:\n in: %+v\nout: %+v", in, out)
	}
}

func TestCausalEdgeRoundTrip(t *testing.T) {
	validated := time.Date(2026, 2, 1, 8, 0, 0, 500, time.UTC)
	in := domain.CausalEdge{
		ID:          uuid.New(),
		SourceID:    uuid.New(),
		TargetID:    uuid.New(),
		Relation:    domain.RelationTriggeredBy,
		Strength:    0.6789012345,
		Evidence:    []string{"shared ref internal/api/router.go", "recorded 2h apart"},
		Inferred:    true,
		CreatedAt:   time.Date(2026, 2, 1, 7, 0, 0, 42, time.UTC),
		ValidatedAt: &validated,
	}

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out domain.CausalEdge
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip lost data:\n in: %+v\nout: %+v", in, out)
	}
}

func TestGroundingSnapshotRoundTrip(t *testing.T) {
	in := domain.GroundingSnapshot{
		ID:       "01JX3YV7Q2M8R5T9WABCDEF012",
		MemoryID: uuid.New(),
		Verdict:  domain.VerdictPartiallyConfirmed,
		Score:    0.6543210987,
		PerEvidence: map[domain.EvidenceType]float64{
			domain.EvidenceFilePresence:       1,
			domain.EvidenceFunctionSignature:  0.5,
			domain.EvidenceReferenceFreshness: 0.3333333333333333,
		},
		DataSourcesConsulted: []string{"codebase_scan"},
		CheckedAt:            time.Date(2026, 2, 14, 23, 59, 59, 999999999, time.UTC),
		FlaggedForReview:     true,
	}

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out domain.GroundingSnapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip lost data:\n in: %+v\nout: %+v", in, out)
	}
}
