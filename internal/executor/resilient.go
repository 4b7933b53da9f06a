package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// ResilientConfig tunes the guard rails around snippet execution.
type ResilientConfig struct {
	// MaxConcurrent bounds interpreter processes in flight (default: 4)
	MaxConcurrent int

	// RatePerSecond caps snippet starts across all callers (default: 10)
	RatePerSecond int

	// Logger for resilience events
	Logger *slog.Logger
}

func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		MaxConcurrent: 4,
		RatePerSecond: 10,
	}
}

type snippetOutput struct {
	stdout string
	stderr string
}

// ResilientRunner wraps a Runner with fortify patterns: a bulkhead so a
// burst of submissions cannot fork unbounded interpreters, a token
// bucket on snippet starts, and a short retry on harness failures.
// Timeouts and user-code errors are never retried.
type ResilientRunner struct {
	inner     Runner
	bulkhead  bulkhead.Bulkhead[*snippetOutput]
	retrier   retry.Retry[*snippetOutput]
	rateLimit ratelimit.RateLimiter
	logger    *slog.Logger
}

func NewResilientRunner(inner Runner, cfg ResilientConfig) *ResilientRunner {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	rate := cfg.RatePerSecond
	if rate <= 0 {
		rate = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ResilientRunner{
		inner:  inner,
		logger: logger,
		bulkhead: bulkhead.New[*snippetOutput](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxConcurrent * 2,
			QueueTimeout:  10 * time.Second,
		}),
		retrier: retry.New[*snippetOutput](retry.Config{
			MaxAttempts:   2,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable: func(err error) bool {
				return err != nil && !errors.Is(err, ErrTimedOut)
			},
		}),
		rateLimit: ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 2,
			Interval: time.Second,
		}),
	}
}

func (r *ResilientRunner) RunSnippet(ctx context.Context, source string) (string, string, error) {
	// Test cases of one submission start concurrently and can outnumber
	// the bucket; a snippet over the rate waits for a token rather than
	// failing the case. The per-case timeout bounds the wait.
	for !r.rateLimit.Allow(ctx, "executor") {
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	out, err := r.retrier.Do(ctx, func(ctx context.Context) (*snippetOutput, error) {
		return r.bulkhead.Execute(ctx, func(ctx context.Context) (*snippetOutput, error) {
			stdout, stderr, err := r.inner.RunSnippet(ctx, source)
			if err != nil {
				return nil, err
			}
			return &snippetOutput{stdout: stdout, stderr: stderr}, nil
		})
	})
	if err != nil {
		if !errors.Is(err, ErrTimedOut) {
			r.logger.Warn("snippet execution failed", "error", err)
		}
		return "", "", err
	}
	return out.stdout, out.stderr, nil
}

func (r *ResilientRunner) Close() error {
	if r.rateLimit != nil {
		return r.rateLimit.Close()
	}
	return nil
}
