package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/joho/godotenv"
)

// Load reads the .env file specified by LEDGERMIND_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("LEDGERMIND_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// MemoryDatabaseURL is the connection string for the memory ledger
// (versions, edges, snapshots, conflicts).
func MemoryDatabaseURL() string {
	return os.Getenv("MEMORY_DATABASE_URL")
}

// GroundTruthDatabaseURL is the connection string for the read-only
// codebase analysis store consulted during grounding.
func GroundTruthDatabaseURL() string {
	return os.Getenv("GROUND_TRUTH_DATABASE_URL")
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// GroundingParallelism bounds concurrent verification within a batch.
func GroundingParallelism() int {
	n, err := strconv.Atoi(os.Getenv("GROUNDING_PARALLELISM"))
	if err != nil || n <= 0 {
		return 8
	}
	return n
}

// GroundingBatchCap is the most memories a single batch run will verify;
// the rest are deferred.
func GroundingBatchCap() int {
	n, err := strconv.Atoi(os.Getenv("GROUNDING_BATCH_CAP"))
	if err != nil || n <= 0 {
		return 500
	}
	return n
}

// RetryMaxAttempts bounds version-conflict retries on writes.
func RetryMaxAttempts() int {
	n, err := strconv.Atoi(os.Getenv("RETRY_MAX_ATTEMPTS"))
	if err != nil || n <= 0 {
		return 4
	}
	return n
}

// ErrorBudgetThreshold is the consecutive-failure count after which a
// dependency is reported as degraded.
func ErrorBudgetThreshold() int {
	n, err := strconv.Atoi(os.Getenv("ERROR_BUDGET_THRESHOLD"))
	if err != nil || n <= 0 {
		return 5
	}
	return n
}

// WeightHalfLifeDays controls how fast adaptive evidence weights decay
// back toward their static baselines.
func WeightHalfLifeDays() float64 {
	d, err := strconv.ParseFloat(os.Getenv("WEIGHT_HALF_LIFE_DAYS"), 64)
	if err != nil || d <= 0 {
		return 365
	}
	return d
}

// VerdictThresholds returns the verdict cut points, each overridable by
// env var. Invalid overrides fall back to the defaults.
func VerdictThresholds() domain.VerdictThresholds {
	t := domain.DefaultVerdictThresholds()
	if v, err := strconv.ParseFloat(os.Getenv("VERDICT_CONFIRMED"), 64); err == nil && v > 0 && v <= 1 {
		t.Confirmed = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("VERDICT_PARTIAL"), 64); err == nil && v > 0 && v < t.Confirmed {
		t.PartiallyConfirmed = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("VERDICT_INSUFFICIENT"), 64); err == nil && v > 0 && v < t.PartiallyConfirmed {
		t.InsufficientData = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("VERDICT_STALE"), 64); err == nil && v > 0 && v < t.InsufficientData {
		t.Stale = v
	}
	return t
}

// SimilarityProvider returns the configured similarity provider.
// Defaults to "pgvector" if not set.
// Valid values: pgvector, mock
func SimilarityProvider() string {
	p := os.Getenv("SIMILARITY_PROVIDER")
	if p == "" {
		return "pgvector"
	}
	return p
}

// EvidenceSourceName labels the ground-truth source in snapshots and
// contradiction records.
func EvidenceSourceName() string {
	n := os.Getenv("EVIDENCE_SOURCE_NAME")
	if n == "" {
		return "codebase_scan"
	}
	return n
}
