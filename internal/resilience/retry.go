package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 20 * time.Millisecond
	DefaultMaxDelay    = 2 * time.Second
)

// Retrier runs an operation with bounded attempts, exponential backoff and
// jitter. Only errors the caller's predicate accepts are retried; anything
// else surfaces immediately. Beyond the attempt budget the last error is
// returned wrapped, never retried silently.
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	logger      *zap.Logger
}

func NewRetrier(maxAttempts int, logger *zap.Logger) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Retrier{
		MaxAttempts: maxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		logger:      logger,
	}
}

// Do runs fn up to MaxAttempts times. retryable decides which errors are
// worth another attempt (optimistic-concurrency losses, lock contention).
func (r *Retrier) Do(ctx context.Context, op string, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt == r.MaxAttempts {
			break
		}

		delay := r.backoff(attempt)
		r.logger.Debug("retrying operation",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: retries exhausted after %d attempts: %w", op, r.MaxAttempts, err)
}

// backoff doubles the base delay per attempt and adds up to 50% jitter.
func (r *Retrier) backoff(attempt int) time.Duration {
	delay := r.BaseDelay << (attempt - 1)
	if delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}
