package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	return Options{
		MaxRetries:        3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Timeout:           time.Second,
		FailureThreshold:  100,
		OpenTimeout:       time.Minute,
	}
}

func TestDoSucceedsAfterTransientErrors(t *testing.T) {
	e := New("test", fastOptions(), nil)
	calls := 0
	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsRetries(t *testing.T) {
	e := New("test", fastOptions(), nil)
	var failures int
	e.OnFailure = func(error) { failures++ }

	calls := 0
	err := e.Do(context.Background(), "embed", func(ctx context.Context) error {
		calls++
		return errors.New("429 rate limit exceeded")
	})

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 4, ex.Attempts)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, failures)
	assert.Contains(t, err.Error(), "embed failed after 4 attempts")
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	e := New("test", fastOptions(), nil)
	calls := 0
	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return errors.New("401 unauthorized")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoOpensCircuit(t *testing.T) {
	opts := fastOptions()
	opts.MaxRetries = 0
	opts.FailureThreshold = 2
	e := New("test", opts, nil)

	fail := func(ctx context.Context) error { return errors.New("502 bad gateway") }
	require.Error(t, e.Do(context.Background(), "op", fail))
	require.Error(t, e.Do(context.Background(), "op", fail))

	called := false
	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, "open", e.State())
}

func TestDoAppliesPerAttemptTimeout(t *testing.T) {
	opts := fastOptions()
	opts.MaxRetries = 1
	opts.Timeout = 10 * time.Millisecond
	e := New("test", opts, nil)

	calls := 0
	err := e.Do(context.Background(), "slow", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, calls)
}

func TestDoRespectsConcurrencyCap(t *testing.T) {
	opts := fastOptions()
	opts.MaxConcurrent = 2
	e := New("test", opts, nil)

	var inFlight, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Do(context.Background(), "op", func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestDoStopsOnCanceledContext(t *testing.T) {
	opts := fastOptions()
	opts.InitialBackoff = time.Second
	opts.MaxBackoff = time.Second
	e := New("test", opts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := e.Do(ctx, "op", func(context.Context) error {
		cancel()
		return errors.New("connection reset by peer")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), true},
		{context.Canceled, false},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("500 internal server error"), true},
		{errors.New("529 overloaded"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("400 bad request"), false},
		{errors.New("404 not found"), false},
		{Permanent(errors.New("503 but permanent")), false},
		{errors.New("something odd"), false},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetriable(tt.err))
		})
	}
}
