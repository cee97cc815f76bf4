package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConflictKind string

const (
	ConflictContradiction ConflictKind = "contradiction"
	ConflictSupersession  ConflictKind = "supersession"
	ConflictScopeOverlap  ConflictKind = "scope_overlap"
)

type ResolutionStrategy string

const (
	StrategyHigherConfidence ResolutionStrategy = "higher_confidence"
	StrategyNewerWins        ResolutionStrategy = "newer_wins"
	StrategyScopeSpecific    ResolutionStrategy = "scope_specific"
	StrategyManual           ResolutionStrategy = "manual"
)

func ValidResolutionStrategy(s string) bool {
	switch ResolutionStrategy(s) {
	case StrategyHigherConfidence, StrategyNewerWins, StrategyScopeSpecific, StrategyManual:
		return true
	}
	return false
}

type ResolvedBy string

const (
	ResolvedAutomatic ResolvedBy = "automatic"
	ResolvedManual    ResolvedBy = "manual"
)

// Resolution closes a conflict. WinnerID is nil for scope_specific
// resolutions, where both memories stand in their own scopes.
type Resolution struct {
	Strategy   ResolutionStrategy `json:"strategy"`
	WinnerID   *uuid.UUID         `json:"winner_id,omitempty"`
	ResolvedBy ResolvedBy         `json:"resolved_by"`
	ResolvedAt time.Time          `json:"resolved_at"`
}

// Conflict is a detected contradiction between two or more memories on the
// same topic. Open until a Resolution is recorded.
type Conflict struct {
	ID          string       `json:"id"`
	MemoryIDs   []uuid.UUID  `json:"memory_ids"`
	Kind        ConflictKind `json:"kind"`
	Description string       `json:"description"`
	DetectedAt  time.Time    `json:"detected_at"`
	Resolution  *Resolution  `json:"resolution,omitempty"`
}
