package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/taskflow/internal/executor"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerSettings configures every breaker created by a CircuitBreakerRegistry.
type BreakerSettings struct {
	ConsecutiveFailures uint32        // Trip after this many failures in a row (default 5)
	OpenTimeout         time.Duration // Stay open before testing recovery (default 30s)
	HalfOpenRequests    uint32        // Test requests allowed in half-open state (default 3)
}

// DefaultBreakerSettings returns the default breaker settings.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    3,
	}
}

// CircuitBreakerRegistry manages per-executor circuit breakers.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	settings BreakerSettings
	logger   *slog.Logger
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry.
// Zero-valued settings fields take their defaults.
func NewCircuitBreakerRegistry(settings BreakerSettings, logger *slog.Logger) *CircuitBreakerRegistry {
	def := DefaultBreakerSettings()
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = def.ConsecutiveFailures
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = def.OpenTimeout
	}
	if settings.HalfOpenRequests == 0 {
		settings.HalfOpenRequests = def.HalfOpenRequests
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreakerRegistry{
		settings: settings,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given executor name.
// Creates a new one if it doesn't exist.
func (r *CircuitBreakerRegistry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	threshold := r.settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: r.settings.HalfOpenRequests,
		Interval:    0, // Don't clear counts automatically
		Timeout:     r.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change", "executor", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation and timeouts are the caller's doing, not the executor's
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[name] = cb
	return cb
}

// ResilientExecutor decorates an executor with retry and circuit breaking.
// Only raised errors are retried; a result reporting success=false is returned as-is.
type ResilientExecutor struct {
	inner   executor.Executor
	breaker *gobreaker.CircuitBreaker // nil disables circuit breaking
	retry   *RetryConfig              // nil disables retries
}

// NewResilientExecutor wraps inner. breakers and retry are both optional.
func NewResilientExecutor(inner executor.Executor, breakers *CircuitBreakerRegistry, retry *RetryConfig) *ResilientExecutor {
	re := &ResilientExecutor{inner: inner, retry: retry}
	if breakers != nil {
		re.breaker = breakers.Get(inner.Name())
	}
	return re
}

// Name returns the wrapped executor's name.
func (r *ResilientExecutor) Name() string {
	return r.inner.Name()
}

// Execute runs the wrapped executor under the configured policies.
func (r *ResilientExecutor) Execute(ctx context.Context, prompt string, input map[string]any) (executor.Result, error) {
	call := func() (executor.Result, error) {
		return r.inner.Execute(ctx, prompt, input)
	}
	if r.breaker != nil {
		call = func() (executor.Result, error) {
			out, err := r.breaker.Execute(func() (interface{}, error) {
				return r.inner.Execute(ctx, prompt, input)
			})
			res, _ := out.(executor.Result)
			return res, err
		}
	}

	if r.retry == nil {
		return call()
	}
	return executeWithRetry(ctx, call, *r.retry)
}

// executeWithRetry runs call with exponential backoff until it succeeds, the
// breaker rejects it, ctx ends or the elapsed-time budget runs out.
func executeWithRetry(ctx context.Context, call func() (executor.Result, error), retryCfg RetryConfig) (executor.Result, error) {
	var res executor.Result

	operation := func() error {
		// Check context first - fail fast if cancelled
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		out, err := call()
		if err != nil {
			// Circuit is open - don't retry
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		res = out
		return nil
	}

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = retryCfg.InitialInterval
	backoffPolicy.MaxInterval = retryCfg.MaxInterval
	backoffPolicy.MaxElapsedTime = retryCfg.MaxElapsedTime
	backoffPolicy.Multiplier = retryCfg.Multiplier
	backoffPolicy.RandomizationFactor = retryCfg.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(backoffPolicy, ctx))
	return res, err
}
