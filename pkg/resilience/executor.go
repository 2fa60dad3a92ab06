package resilience

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"orderflow/pkg/logging"
	"orderflow/pkg/timeutils"
)

type Config struct {
	// Calls per second admitted towards the collaborator; callers past the
	// rate queue on the limiter.
	RatePerSecond float64
	RateBurst     int

	FailureThreshold int
	ResetTimeout     time.Duration

	// One initial attempt plus one retry per delay. Only transient errors
	// are retried.
	AttemptDelays []time.Duration

	// Calls allowed in flight at once.
	MaxConcurrent int64
}

func DefaultConfig() Config {
	return Config{
		RatePerSecond:    50,
		RateBurst:        50,
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
		AttemptDelays:    []time.Duration{100 * time.Millisecond, 500 * time.Millisecond},
		MaxConcurrent:    25,
	}
}

// Executor wraps calls to one external collaborator with, in order: rate
// limiting, circuit breaking, bounded retry and a bulkhead. Each wrapped
// operation declares its own fallback via Do.
type Executor struct {
	name    string
	limiter *rate.Limiter
	breaker *breaker
	sem     *semaphore.Weighted
	delays  []time.Duration
	logger  *logging.ZapLogger
}

func NewExecutor(name string, cfg Config, logger *logging.ZapLogger) *Executor {
	return &Executor{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		breaker: newBreaker(cfg.FailureThreshold, cfg.ResetTimeout),
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		delays:  cfg.AttemptDelays,
		logger:  logger,
	}
}

// Fallback produces a degraded result once the circuit is open or attempts
// are exhausted. A nil fallback surfaces the error instead.
type Fallback[T any] func(ctx context.Context, cause error) (T, error)

// Do runs op under ex's policies. Retries are attempted for transient errors
// only; every outcome is recorded against the breaker so that sustained
// failures trip it.
func Do[T any](ctx context.Context, ex *Executor, op func(ctx context.Context) (T, error), fallback Fallback[T]) (T, error) {
	var zero T

	if err := ex.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("%s: rate limiter wait: %w", ex.name, err)
	}

	if !ex.breaker.canExecute() {
		ex.logger.WarnCtx(ctx, "circuit open, skipping call", zap.String("executor", ex.name))
		return runFallback(ctx, ex, fallback, ErrCircuitOpen)
	}

	if err := ex.sem.Acquire(ctx, 1); err != nil {
		return zero, fmt.Errorf("%s: bulkhead acquire: %w", ex.name, err)
	}
	defer ex.sem.Release(1)

	// timeutils.Retry sleeps delays[i] after attempt i, so one trailing zero
	// buys the initial attempt and each configured delay buys a retry.
	attempts := append(append([]time.Duration{}, ex.delays...), 0)
	res, err := timeutils.Retry(ctx, attempts, op, func(_ T, err error) bool {
		return err != nil && IsTransient(err)
	})
	ex.breaker.recordResult(err)
	if err != nil {
		return runFallback(ctx, ex, fallback, err)
	}
	return res, nil
}

func runFallback[T any](ctx context.Context, ex *Executor, fallback Fallback[T], cause error) (T, error) {
	if fallback == nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", ex.name, cause)
	}
	ex.logger.WarnCtx(ctx, "falling back", zap.String("executor", ex.name), zap.Error(cause))
	return fallback(ctx, cause)
}
