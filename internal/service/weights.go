package service

import (
	"context"
	"math"
	"time"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultWeightHalfLifeDays = 365.0

	// Per-weight and active-sum guard rails. Adaptive adjustment that
	// pushes outside these bands falls back to the static defaults for
	// the pass.
	weightCeiling  = 5.0
	weightSumFloor = 5.0
	weightSumCeil  = 30.0

	// failureRateWindow is how many recent snapshots feed the adaptive
	// adjustment.
	failureRateWindow = 50

	// driftSignalFloor: a contribution below this counts as the evidence
	// type signaling drift, which is what the failure rate measures.
	driftSignalFloor = 0.5
)

// WeightEngine computes per-evidence weights for a grounding pass. Recent
// failures push a type's weight up (a signal that keeps catching drift
// deserves more say); the adjustment decays back toward the static base
// with a half-life so stale history stops steering.
type WeightEngine struct {
	snapshots    domain.SnapshotStore
	halfLifeDays float64
	logger       *zap.Logger
	now          func() time.Time
}

func NewWeightEngine(snapshots domain.SnapshotStore, halfLifeDays float64, logger *zap.Logger) *WeightEngine {
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultWeightHalfLifeDays
	}
	return &WeightEngine{
		snapshots:    snapshots,
		halfLifeDays: halfLifeDays,
		logger:       logger,
		now:          time.Now,
	}
}

// Weights returns the weight for every evidence type this pass, and
// whether the engine fell back to static defaults because the adaptive
// sum left the guard band.
func (e *WeightEngine) Weights(ctx context.Context) (map[domain.EvidenceType]float64, bool) {
	recent, err := e.snapshots.ListRecent(ctx, failureRateWindow)
	if err != nil {
		e.logger.Warn("failed to load snapshot history for adaptive weights, using static defaults",
			zap.Error(err))
		return staticWeights(), true
	}

	rates, lastSeen := failureRates(recent)
	now := e.now()

	weights := make(map[domain.EvidenceType]float64, len(domain.AllEvidenceTypes))
	sum := 0.0
	for _, et := range domain.AllEvidenceTypes {
		base := et.BaseWeight()
		adjusted := base * (1 + rates[et]*0.5)

		days := 0.0
		if seen, ok := lastSeen[et]; ok {
			days = now.Sub(seen).Hours() / 24
			if days < 0 {
				days = 0
			}
		}
		w := Decay(base, adjusted, days, e.halfLifeDays)
		if w != w || math.IsInf(w, 0) || w < 0 {
			w = 0
		}
		if w > weightCeiling {
			w = weightCeiling
		}
		weights[et] = w
		sum += w
	}

	if sum < weightSumFloor || sum > weightSumCeil {
		e.logger.Warn("adaptive weight sum outside guard band, falling back to static defaults",
			zap.Float64("sum", sum))
		return staticWeights(), true
	}
	return weights, false
}

// Decay pulls an adjusted weight back toward its base with the given
// half-life: at elapsed = halfLife, exactly half the adjustment remains.
func Decay(base, adjusted, elapsedDays, halfLifeDays float64) float64 {
	return base + (adjusted-base)*math.Pow(0.5, elapsedDays/halfLifeDays)
}

func staticWeights() map[domain.EvidenceType]float64 {
	weights := make(map[domain.EvidenceType]float64, len(domain.AllEvidenceTypes))
	for _, et := range domain.AllEvidenceTypes {
		weights[et] = et.BaseWeight()
	}
	return weights
}

// failureRates computes, per evidence type, the fraction of recent
// snapshots in which it signaled drift (contributed below the floor), and
// when it was last consulted.
func failureRates(recent []domain.GroundingSnapshot) (map[domain.EvidenceType]float64, map[domain.EvidenceType]time.Time) {
	seen := map[domain.EvidenceType]int{}
	failed := map[domain.EvidenceType]int{}
	lastSeen := map[domain.EvidenceType]time.Time{}

	for _, snap := range recent {
		for et, contribution := range snap.PerEvidence {
			seen[et]++
			if contribution < driftSignalFloor {
				failed[et]++
			}
			if snap.CheckedAt.After(lastSeen[et]) {
				lastSeen[et] = snap.CheckedAt
			}
		}
	}

	rates := make(map[domain.EvidenceType]float64, len(seen))
	for et, n := range seen {
		rates[et] = float64(failed[et]) / float64(n)
	}
	return rates, lastSeen
}
