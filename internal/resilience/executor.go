// Package resilience wraps calls to external services with a per-attempt timeout,
// bounded retry with exponential backoff, a circuit breaker, a concurrency cap and
// a request rate limit.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/logging"
)

// ErrCircuitOpen is returned when the breaker rejects a call without attempting it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ExhaustedError is returned when every attempt failed with a retriable error,
// or the first attempt failed with a permanent one.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Options configures an Executor.
type Options struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Timeout           time.Duration

	FailureThreshold uint32
	OpenTimeout      time.Duration

	// MaxConcurrent caps in-flight calls; 0 means unlimited.
	MaxConcurrent int
	// RequestsPerSecond limits call starts; 0 means unlimited.
	RequestsPerSecond float64
}

// OptionsFrom builds executor options from the shared retry config.
func OptionsFrom(rc config.RetryConfig, maxConcurrent int, rps float64) Options {
	return Options{
		MaxRetries:        rc.MaxRetries,
		InitialBackoff:    rc.InitialBackoff,
		MaxBackoff:        rc.MaxBackoff,
		BackoffMultiplier: rc.BackoffMultiplier,
		Timeout:           rc.Timeout,
		FailureThreshold:  uint32(rc.FailureThreshold),
		OpenTimeout:       rc.OpenTimeout,
		MaxConcurrent:     maxConcurrent,
		RequestsPerSecond: rps,
	}
}

// Executor runs operations against one external service.
type Executor struct {
	name    string
	opts    Options
	breaker *gobreaker.CircuitBreaker
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	log     *logging.Logger

	// OnFailure is called once per failed attempt.
	OnFailure func(err error)
}

// New creates an Executor for the named service.
func New(name string, opts Options, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.NewNop()
	}
	if opts.BackoffMultiplier < 1 {
		opts.BackoffMultiplier = 1
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}

	e := &Executor{name: name, opts: opts, log: log.With("service", name)}

	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			e.log.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
		// Permanent errors say nothing about the service's health.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetriable(err)
		},
	})

	if opts.MaxConcurrent > 0 {
		e.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return e
}

// State reports the breaker state, for status output.
func (e *Executor) State() string {
	return e.breaker.State().String()
}

// Do executes fn with retry and exponential backoff.
func (e *Executor) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("failed to acquire concurrency slot for %s: %w", op, err)
		}
		defer e.sem.Release(1)
	}

	var lastErr error
	backoff := e.opts.InitialBackoff
	attempts := 0

	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%s: rate limiter: %w", op, err)
			}
		}

		attempts++
		_, err := e.breaker.Execute(func() (interface{}, error) {
			attemptCtx := ctx
			if e.opts.Timeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
				defer cancel()
			}
			return nil, fn(attemptCtx)
		})
		if err == nil {
			if attempt > 0 {
				e.log.Info("external call succeeded after retries", "op", op, "retries", attempt)
			}
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			e.log.Warn("external call blocked by circuit breaker", "op", op, "state", e.State())
			return fmt.Errorf("%s: %w", op, ErrCircuitOpen)
		}

		lastErr = err
		if e.OnFailure != nil {
			e.OnFailure(err)
		}

		if !IsRetriable(err) {
			e.log.Warn("external call failed with non-retriable error", "op", op, "error", err)
			return &ExhaustedError{Op: op, Attempts: attempts, Err: err}
		}
		if attempt == e.opts.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s failed: context canceled: %w", op, ctx.Err())
		}

		e.log.Debug("external call failed, retrying",
			"op", op, "attempt", attempt+1, "max_attempts", e.opts.MaxRetries+1,
			"backoff", backoff.String(), "error", err)

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * e.opts.BackoffMultiplier)
			if e.opts.MaxBackoff > 0 && backoff > e.opts.MaxBackoff {
				backoff = e.opts.MaxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("%s failed: context canceled during backoff: %w", op, ctx.Err())
		}
	}

	return &ExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}
