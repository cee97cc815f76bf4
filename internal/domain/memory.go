package domain

import (
	"time"

	"github.com/google/uuid"
)

// Importance is an ordinal priority tag on a memory.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

func ValidImportance(i string) bool {
	switch Importance(i) {
	case ImportanceLow, ImportanceMedium, ImportanceHigh, ImportanceCritical:
		return true
	}
	return false
}

// Rank orders importance levels; unknown values sort lowest.
func (i Importance) Rank() int {
	switch i {
	case ImportanceLow:
		return 1
	case ImportanceMedium:
		return 2
	case ImportanceHigh:
		return 3
	case ImportanceCritical:
		return 4
	}
	return 0
}

// RefKind identifies which ground-truth table an external ref points into.
type RefKind string

const (
	RefFile       RefKind = "file"
	RefFunction   RefKind = "function"
	RefPattern    RefKind = "pattern"
	RefConstraint RefKind = "constraint"
)

// ExternalRef is an opaque foreign key into a collaborator system.
// This core never dereferences refs itself; evidence collectors do.
type ExternalRef struct {
	Kind RefKind `json:"kind"`
	Key  string  `json:"key"`
}

// Memory is one fact learned about a codebase, tracked on two timelines:
// RecordedAt (transaction time, immutable) and ValidFrom/ValidUntil (valid
// time, closable but never reopened). Every mutation writes a new version;
// Version is the optimistic-concurrency token and TxTime is when that
// version was written.
type Memory struct {
	ID            uuid.UUID     `json:"id"`
	Kind          string        `json:"kind"`
	Summary       string        `json:"summary"`
	Confidence    float64       `json:"confidence"`
	Importance    Importance    `json:"importance"`
	RecordedAt    time.Time     `json:"recorded_at"`
	ValidFrom     time.Time     `json:"valid_from"`
	ValidUntil    *time.Time    `json:"valid_until,omitempty"`
	Archived      bool          `json:"archived"`
	ArchiveReason string        `json:"archive_reason,omitempty"`
	SupersededBy  *uuid.UUID    `json:"superseded_by,omitempty"`
	Supersedes    *uuid.UUID    `json:"supersedes,omitempty"`
	ExternalRefs  []ExternalRef `json:"external_refs,omitempty"`
	Version       int64         `json:"version"`
	TxTime        time.Time     `json:"tx_time"`
}

// MemoryPatch carries the updatable fields of a memory. Nil means "leave
// unchanged". RecordedAt and ValidUntil are deliberately absent: the former
// is immutable, the latter only moves through CloseValidTime.
type MemoryPatch struct {
	Kind         *string        `json:"kind,omitempty"`
	Summary      *string        `json:"summary,omitempty"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Importance   *Importance    `json:"importance,omitempty"`
	ExternalRefs *[]ExternalRef `json:"external_refs,omitempty"`
	SupersededBy *uuid.UUID     `json:"superseded_by,omitempty"`
	Supersedes   *uuid.UUID     `json:"supersedes,omitempty"`
}

// RefOverlap returns the Jaccard overlap of two ref sets in [0,1].
func RefOverlap(a, b []ExternalRef) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[ExternalRef]struct{}, len(a))
	for _, r := range a {
		set[r] = struct{}{}
	}
	shared := 0
	union := len(set)
	seen := make(map[ExternalRef]struct{}, len(b))
	for _, r := range b {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		if _, ok := set[r]; ok {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}

// RefsDisjoint reports whether two ref sets provably share nothing.
// Both sets must be non-empty for disjointness to be provable.
func RefsDisjoint(a, b []ExternalRef) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return RefOverlap(a, b) == 0
}
