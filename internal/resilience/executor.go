package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call before the
// operation is invoked at all.
var ErrCircuitOpen = errors.New("circuit open")

// Operation is a caller-supplied unit of work. The executor knows nothing
// about what it does beyond timing and success/failure.
type Operation func(ctx context.Context) (any, error)

// Executor composes backoff, breaker and fallback: attempt the primary under
// backoff and the breaker; on terminal failure invoke the fallback if one is
// configured, else propagate the error.
type Executor struct {
	backoff    Backoff
	registry   *Registry
	classifier Classifier
	fallback   Fallback
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithBackoff overrides the default backoff policy.
func WithBackoff(b Backoff) ExecutorOption {
	return func(e *Executor) { e.backoff = b }
}

// WithClassifier overrides the retryability predicate.
func WithClassifier(c Classifier) ExecutorOption {
	return func(e *Executor) { e.classifier = c }
}

// WithFallback installs a secondary strategy for terminal failures.
func WithFallback(f Fallback) ExecutorOption {
	return func(e *Executor) { e.fallback = f }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// withSleep overrides the retry delay for tests.
func withSleep(sleep func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.sleep = sleep }
}

// NewExecutor builds an executor whose breakers come from registry, one per
// dependency key.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		backoff:    DefaultBackoff(),
		registry:   registry,
		classifier: DefaultClassifier,
		logger:     slog.Default(),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs op against the dependency identified by key. The returned
// Result carries provenance so a fallback-served value is never mistaken for
// a primary success.
func (e *Executor) Execute(ctx context.Context, key string, op Operation) (Result, error) {
	breaker := e.registry.Get(key)

	if !breaker.Allow() {
		circuitRejectionsTotal.WithLabelValues(key).Inc()
		e.logger.Warn("circuit open, rejecting call", "dependency", key)
		return e.recover(ctx, key, fmt.Errorf("%w: %s", ErrCircuitOpen, key))
	}

	value, err := e.attempt(ctx, key, breaker, op)
	if err != nil {
		return e.recover(ctx, key, err)
	}

	if cache, ok := e.fallback.(*CacheFallback); ok && cache != nil {
		if rememberErr := cache.Remember(ctx, key, value); rememberErr != nil {
			e.logger.Debug("fallback cache write failed", "dependency", key, "error", rememberErr)
		}
	}
	return Result{Source: SourcePrimary, Value: value}, nil
}

// attempt runs op under the backoff policy, reporting each outcome to the
// breaker. Cancellation stops in-flight retries before the next scheduled
// attempt; a dispatched operation is allowed to finish but its result is
// discarded by the caller via the context error.
func (e *Executor) attempt(ctx context.Context, key string, breaker *Breaker, op Operation) (any, error) {
	maxAttempts := e.backoff.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			// The breaker is consulted after the delay, so an admission is
			// always followed by an invocation that reports its outcome. The
			// half-open trial slot must never be consumed by a caller that
			// bails out during the sleep.
			if err := e.sleep(ctx, e.backoff.Next(attempt-1)); err != nil {
				return nil, err
			}
			if !breaker.Allow() {
				return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, key)
			}
		}

		value, err := op(ctx)
		if err == nil {
			breaker.RecordSuccess()
			return value, nil
		}
		breaker.RecordFailure()
		lastErr = err

		if !e.classifier(err) {
			return nil, err
		}
		retriesTotal.WithLabelValues(key).Inc()
		e.logger.Debug("transient failure, will retry",
			"dependency", key, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("retries exhausted after %d attempts: %w", maxAttempts, lastErr)
}

// recover consults the fallback on terminal failure. Fallback results are
// tagged SourceFallback; a missing or failed fallback propagates the original
// error so nothing is silently swallowed.
func (e *Executor) recover(ctx context.Context, key string, primaryErr error) (Result, error) {
	if e.fallback == nil {
		return Result{}, primaryErr
	}
	value, err := e.fallback.Execute(ctx, key, primaryErr)
	if err != nil {
		e.logger.Warn("fallback failed", "dependency", key, "error", err)
		return Result{}, primaryErr
	}
	fallbackServedTotal.WithLabelValues(key).Inc()
	e.logger.Info("fallback served", "dependency", key, "primary_error", primaryErr)
	return Result{Source: SourceFallback, Value: value}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
