package domain

import (
	"time"

	"github.com/google/uuid"
)

// EvidenceType names one independently queryable signal from the
// ground-truth store. The set is fixed and known at build time.
type EvidenceType string

const (
	EvidenceFilePresence       EvidenceType = "file_presence"
	EvidenceFunctionSignature  EvidenceType = "function_signature"
	EvidencePatternDetection   EvidenceType = "pattern_detection"
	EvidenceConstraintStatus   EvidenceType = "constraint_status"
	EvidenceReferenceFreshness EvidenceType = "reference_freshness"
	EvidenceUsageFrequency     EvidenceType = "usage_frequency"
)

// AllEvidenceTypes lists every collector the grounding engine consults,
// in scoring order.
var AllEvidenceTypes = []EvidenceType{
	EvidenceFilePresence,
	EvidenceFunctionSignature,
	EvidencePatternDetection,
	EvidenceConstraintStatus,
	EvidenceReferenceFreshness,
	EvidenceUsageFrequency,
}

// BaseWeight returns the static default weight of an evidence type. The
// defaults sum to 12, inside the [5,30] guard band for active weights.
func (e EvidenceType) BaseWeight() float64 {
	switch e {
	case EvidenceFilePresence:
		return 3.0
	case EvidenceFunctionSignature:
		return 2.5
	case EvidencePatternDetection:
		return 2.0
	case EvidenceConstraintStatus:
		return 2.0
	case EvidenceReferenceFreshness:
		return 1.5
	case EvidenceUsageFrequency:
		return 1.0
	}
	return 1.0
}

// EvidenceValue is one collector's answer: a normalized [0,1] value, or
// not-applicable when the memory carries no refs the collector understands.
type EvidenceValue struct {
	Value      float64
	Applicable bool
}

type Verdict string

const (
	VerdictConfirmed          Verdict = "confirmed"
	VerdictPartiallyConfirmed Verdict = "partially_confirmed"
	VerdictInsufficientData   Verdict = "insufficient_data"
	VerdictStale              Verdict = "stale"
	VerdictUnconfirmed        Verdict = "unconfirmed"
	VerdictContradicted       Verdict = "contradicted"
	VerdictError              Verdict = "error"
)

// VerdictThresholds are the score cut points, closed on the upper side:
// a score exactly at a boundary lands in the higher-scoring bucket.
type VerdictThresholds struct {
	Confirmed          float64
	PartiallyConfirmed float64
	InsufficientData   float64
	Stale              float64
}

func DefaultVerdictThresholds() VerdictThresholds {
	return VerdictThresholds{
		Confirmed:          0.8,
		PartiallyConfirmed: 0.6,
		InsufficientData:   0.4,
		Stale:              0.2,
	}
}

// VerdictForScore maps a score in [0,1] to a verdict. Total over [0,1].
func (t VerdictThresholds) VerdictForScore(score float64) Verdict {
	switch {
	case score >= t.Confirmed:
		return VerdictConfirmed
	case score >= t.PartiallyConfirmed:
		return VerdictPartiallyConfirmed
	case score >= t.InsufficientData:
		return VerdictInsufficientData
	case score >= t.Stale:
		return VerdictStale
	default:
		return VerdictContradicted
	}
}

// AdjustmentMode says how a verdict moves a memory's confidence.
type AdjustmentMode string

const (
	AdjustIncrease AdjustmentMode = "increase"
	AdjustDecrease AdjustmentMode = "decrease"
	AdjustNoChange AdjustmentMode = "no_change"
	AdjustSet      AdjustmentMode = "set"
)

func ValidAdjustmentMode(m string) bool {
	switch AdjustmentMode(m) {
	case AdjustIncrease, AdjustDecrease, AdjustNoChange, AdjustSet:
		return true
	}
	return false
}

const (
	ConfirmedBoost      = 0.10
	PartialBoost        = 0.03
	StalePenalty        = 0.10
	ContradictedCeiling = 0.20
)

// AdjustmentForVerdict returns the confidence move for a verdict. For
// AdjustSet the amount is the ceiling the confidence drops to (it never
// rises to meet it).
func AdjustmentForVerdict(v Verdict) (AdjustmentMode, float64) {
	switch v {
	case VerdictConfirmed:
		return AdjustIncrease, ConfirmedBoost
	case VerdictPartiallyConfirmed:
		return AdjustIncrease, PartialBoost
	case VerdictStale:
		return AdjustDecrease, StalePenalty
	case VerdictContradicted:
		return AdjustSet, ContradictedCeiling
	}
	return AdjustNoChange, 0
}

// GroundingSnapshot is the immutable record of one grounding check.
// History is retained per memory; snapshots are never updated.
type GroundingSnapshot struct {
	ID                   string                   `json:"id"`
	MemoryID             uuid.UUID                `json:"memory_id"`
	Verdict              Verdict                  `json:"verdict"`
	Score                float64                  `json:"score"`
	PerEvidence          map[EvidenceType]float64 `json:"per_evidence,omitempty"`
	DataSourcesConsulted []string                 `json:"data_sources_consulted,omitempty"`
	CheckedAt            time.Time                `json:"checked_at"`
	FlaggedForReview     bool                     `json:"flagged_for_review"`
}
