package domain

import (
	"time"

	"github.com/google/uuid"
)

type RelationType string

const (
	RelationCaused      RelationType = "caused"
	RelationEnabled     RelationType = "enabled"
	RelationPrevented   RelationType = "prevented"
	RelationContradicts RelationType = "contradicts"
	RelationSupersedes  RelationType = "supersedes"
	RelationSupports    RelationType = "supports"
	RelationDerivedFrom RelationType = "derived_from"
	RelationTriggeredBy RelationType = "triggered_by"
)

func ValidRelationType(r string) bool {
	switch RelationType(r) {
	case RelationCaused, RelationEnabled, RelationPrevented, RelationContradicts,
		RelationSupersedes, RelationSupports, RelationDerivedFrom, RelationTriggeredBy:
		return true
	}
	return false
}

// CausalEdge is a directed, typed, strength-weighted relation between two
// memories. Edges are immutable once written except for strength updates
// and the validated-at stamp; pruning is a soft delete.
type CausalEdge struct {
	ID          uuid.UUID    `json:"id"`
	SourceID    uuid.UUID    `json:"source_id"`
	TargetID    uuid.UUID    `json:"target_id"`
	Relation    RelationType `json:"relation"`
	Strength    float64      `json:"strength"`
	Evidence    []string     `json:"evidence,omitempty"`
	Inferred    bool         `json:"inferred"`
	CreatedAt   time.Time    `json:"created_at"`
	ValidatedAt *time.Time   `json:"validated_at,omitempty"`
	PrunedAt    *time.Time   `json:"-"`
}

// ClampStrength pins a strength value into [0,1]; NaN becomes 0.
func ClampStrength(s float64) float64 {
	if s != s || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

type TraceDirection string

const (
	TraceOrigins TraceDirection = "origins"
	TraceEffects TraceDirection = "effects"
)

func ValidTraceDirection(d string) bool {
	return TraceDirection(d) == TraceOrigins || TraceDirection(d) == TraceEffects
}

// TraceNode is one memory reached during a breadth-first traversal.
type TraceNode struct {
	MemoryID uuid.UUID `json:"memory_id"`
	Depth    int       `json:"depth"`
}

// TraceResult holds nodes ordered by depth (root first) and every edge
// traversed to reach them.
type TraceResult struct {
	Root  uuid.UUID    `json:"root"`
	Nodes []TraceNode  `json:"nodes"`
	Edges []CausalEdge `json:"edges"`
}

// Path is a hop-minimal route between two memories, tie-broken toward the
// maximum product of edge strengths.
type Path struct {
	MemoryIDs []uuid.UUID  `json:"memory_ids"`
	Edges     []CausalEdge `json:"edges"`
	Strength  float64      `json:"strength"`
}

// evidenceNodeNamespace is fixed so the same data source always maps to the
// same synthetic node id, letting edge idempotence absorb repeated
// contradictions from one source.
var evidenceNodeNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// EvidenceSourceNodeID derives the stable graph node id standing in for an
// external evidence source. Grounding contradictions are edges from this
// node back to the contradicted memory.
func EvidenceSourceNodeID(source string) uuid.UUID {
	return uuid.NewSHA1(evidenceNodeNamespace, []byte("evidence:"+source))
}
