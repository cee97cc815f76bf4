// Package evidence reads the ground-truth analysis store (Store B) to
// answer the grounding engine's evidence queries. Store B is owned by the
// scanner collaborator; this package only ever reads it.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	// freshnessHalfLife controls how fast reference_freshness falls off as
	// the last scan ages.
	freshnessHalfLife = 30 * 24 * time.Hour
	// usageSaturation is the call count at which usage_frequency saturates.
	usageSaturation = 100.0
)

// GroundTruthSource collects evidence from Store B. Each evidence type maps
// to one query keyed by the memory's external refs; a type with no matching
// refs answers "not applicable" rather than zero.
type GroundTruthSource struct {
	db     *pgxpool.Pool
	name   string
	logger *zap.Logger
}

func NewGroundTruthSource(db *pgxpool.Pool, name string, logger *zap.Logger) *GroundTruthSource {
	return &GroundTruthSource{db: db, name: name, logger: logger}
}

func (s *GroundTruthSource) Name() string { return s.name }

func (s *GroundTruthSource) Collect(ctx context.Context, et domain.EvidenceType, refs []domain.ExternalRef) (domain.EvidenceValue, error) {
	switch et {
	case domain.EvidenceFilePresence:
		return s.filePresence(ctx, keysOf(refs, domain.RefFile))
	case domain.EvidenceFunctionSignature:
		return s.functionSignature(ctx, keysOf(refs, domain.RefFunction))
	case domain.EvidencePatternDetection:
		return s.patternDetection(ctx, keysOf(refs, domain.RefPattern))
	case domain.EvidenceConstraintStatus:
		return s.constraintStatus(ctx, keysOf(refs, domain.RefConstraint))
	case domain.EvidenceReferenceFreshness:
		return s.referenceFreshness(ctx, len(refs))
	case domain.EvidenceUsageFrequency:
		return s.usageFrequency(ctx, keysOf(refs, domain.RefFunction))
	}
	return domain.EvidenceValue{}, fmt.Errorf("unknown evidence type %q", et)
}

func keysOf(refs []domain.ExternalRef, kind domain.RefKind) []string {
	var keys []string
	for _, r := range refs {
		if r.Kind == kind {
			keys = append(keys, r.Key)
		}
	}
	return keys
}

// filePresence is the fraction of referenced files the latest scan still
// sees on disk.
func (s *GroundTruthSource) filePresence(ctx context.Context, paths []string) (domain.EvidenceValue, error) {
	if len(paths) == 0 {
		return domain.EvidenceValue{}, nil
	}
	var present int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM scanned_files
		 WHERE path = ANY($1) AND deleted = FALSE`, paths,
	).Scan(&present)
	if err != nil {
		return domain.EvidenceValue{}, fmt.Errorf("file presence: %w", err)
	}
	return fraction(present, len(paths)), nil
}

// functionSignature is the fraction of referenced functions whose current
// signature hash matches what was recorded when the memory was learned.
// Ref keys are "qualified_name@sighash"; a bare name matches any signature.
func (s *GroundTruthSource) functionSignature(ctx context.Context, keys []string) (domain.EvidenceValue, error) {
	if len(keys) == 0 {
		return domain.EvidenceValue{}, nil
	}
	matched := 0
	for _, key := range keys {
		name, sig := splitFunctionKey(key)
		var current string
		err := s.db.QueryRow(ctx,
			`SELECT signature_hash FROM functions
			 WHERE qualified_name = $1 AND deleted = FALSE`, name,
		).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return domain.EvidenceValue{}, fmt.Errorf("function signature: %w", err)
		}
		if sig == "" || sig == current {
			matched++
		}
	}
	return fraction(matched, len(keys)), nil
}

func splitFunctionKey(key string) (name, sig string) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '@' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

// patternDetection averages the scanner's detection confidence for the
// referenced patterns; a pattern no longer detected contributes zero.
func (s *GroundTruthSource) patternDetection(ctx context.Context, ids []string) (domain.EvidenceValue, error) {
	if len(ids) == 0 {
		return domain.EvidenceValue{}, nil
	}
	var total float64
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(detection_confidence), 0)
		 FROM detected_patterns
		 WHERE pattern_id = ANY($1) AND active = TRUE`, ids,
	).Scan(&total)
	if err != nil {
		return domain.EvidenceValue{}, fmt.Errorf("pattern detection: %w", err)
	}
	return clamped(total / float64(len(ids))), nil
}

// constraintStatus is the fraction of referenced constraints still enforced.
func (s *GroundTruthSource) constraintStatus(ctx context.Context, ids []string) (domain.EvidenceValue, error) {
	if len(ids) == 0 {
		return domain.EvidenceValue{}, nil
	}
	var active int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM constraints
		 WHERE constraint_id = ANY($1) AND active = TRUE`, ids,
	).Scan(&active)
	if err != nil {
		return domain.EvidenceValue{}, fmt.Errorf("constraint status: %w", err)
	}
	return fraction(active, len(ids)), nil
}

// referenceFreshness decays with the age of the latest completed scan.
// Applicable whenever the memory has any refs at all: stale ground truth
// weakens every other signal.
func (s *GroundTruthSource) referenceFreshness(ctx context.Context, refCount int) (domain.EvidenceValue, error) {
	if refCount == 0 {
		return domain.EvidenceValue{}, nil
	}
	var completedAt time.Time
	err := s.db.QueryRow(ctx,
		`SELECT completed_at FROM scan_runs
		 WHERE status = 'completed'
		 ORDER BY completed_at DESC LIMIT 1`,
	).Scan(&completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EvidenceValue{}, nil
	}
	if err != nil {
		return domain.EvidenceValue{}, fmt.Errorf("reference freshness: %w", err)
	}
	age := time.Since(completedAt)
	if age < 0 {
		age = 0
	}
	v := math.Pow(0.5, age.Hours()/freshnessHalfLife.Hours())
	return clamped(v), nil
}

// usageFrequency saturates logarithmically with the total call count of the
// referenced functions.
func (s *GroundTruthSource) usageFrequency(ctx context.Context, keys []string) (domain.EvidenceValue, error) {
	if len(keys) == 0 {
		return domain.EvidenceValue{}, nil
	}
	names := make([]string, len(keys))
	for i, key := range keys {
		names[i], _ = splitFunctionKey(key)
	}
	var calls int64
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(call_count), 0) FROM functions
		 WHERE qualified_name = ANY($1) AND deleted = FALSE`, names,
	).Scan(&calls)
	if err != nil {
		return domain.EvidenceValue{}, fmt.Errorf("usage frequency: %w", err)
	}
	v := math.Log1p(float64(calls)) / math.Log1p(usageSaturation)
	return clamped(v), nil
}

func fraction(n, total int) domain.EvidenceValue {
	return domain.EvidenceValue{Value: float64(n) / float64(total), Applicable: true}
}

func clamped(v float64) domain.EvidenceValue {
	if v != v || v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return domain.EvidenceValue{Value: v, Applicable: true}
}
