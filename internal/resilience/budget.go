// Package resilience wraps cross-store calls with an error budget and a
// bounded retry. The budget is a consecutive-failure counter, not a timed
// circuit breaker: the underlying stores are embedded and recover the
// instant the cause clears, so every call re-probes instead of waiting out
// a cooldown.
package resilience

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const DefaultBudgetThreshold = 5

// DegradedError reports that a dependency has exceeded its error budget.
// The triggering error is wrapped so errors.Is still matches it.
type DegradedError struct {
	Dependency  string
	Consecutive int
	Err         error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("dependency %s degraded after %d consecutive failures: %v",
		e.Dependency, e.Consecutive, e.Err)
}

func (e *DegradedError) Unwrap() error { return e.Err }

// DependencyStatus is the externally visible health of one dependency.
type DependencyStatus struct {
	Degraded            bool   `json:"degraded"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
}

type depState struct {
	consecutive int
	degraded    bool
	lastErr     error
}

// Budget tracks per-dependency consecutive failures. A success resets the
// counter and clears the degraded mark.
type Budget struct {
	mu        sync.Mutex
	threshold int
	deps      map[string]*depState
	logger    *zap.Logger
}

func NewBudget(threshold int, logger *zap.Logger) *Budget {
	if threshold <= 0 {
		threshold = DefaultBudgetThreshold
	}
	return &Budget{
		threshold: threshold,
		deps:      make(map[string]*depState),
		logger:    logger,
	}
}

// Do runs fn and records the outcome against the named dependency. It
// always runs fn; a degraded dependency is re-probed on the very next
// call. Once the consecutive-failure count reaches the threshold, the
// returned error is a *DegradedError wrapping the cause.
func (b *Budget) Do(ctx context.Context, dep string, fn func(ctx context.Context) error) error {
	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.deps[dep]
	if state == nil {
		state = &depState{}
		b.deps[dep] = state
	}

	if err == nil {
		if state.degraded {
			b.logger.Info("dependency recovered", zap.String("dependency", dep))
		}
		state.consecutive = 0
		state.degraded = false
		state.lastErr = nil
		return nil
	}

	state.consecutive++
	state.lastErr = err
	if state.consecutive >= b.threshold {
		if !state.degraded {
			b.logger.Warn("dependency degraded",
				zap.String("dependency", dep),
				zap.Int("consecutive_failures", state.consecutive),
				zap.Error(err))
		}
		state.degraded = true
		return &DegradedError{Dependency: dep, Consecutive: state.consecutive, Err: err}
	}
	return err
}

// Degraded reports whether a dependency is currently over budget.
func (b *Budget) Degraded(dep string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.deps[dep]
	return state != nil && state.degraded
}

// Status returns a snapshot of every tracked dependency.
func (b *Budget) Status() map[string]DependencyStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]DependencyStatus, len(b.deps))
	for dep, state := range b.deps {
		st := DependencyStatus{
			Degraded:            state.degraded,
			ConsecutiveFailures: state.consecutive,
		}
		if state.lastErr != nil {
			st.LastError = state.lastErr.Error()
		}
		out[dep] = st
	}
	return out
}
