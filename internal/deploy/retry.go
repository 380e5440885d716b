package deploy

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/streme-fun/streme-bot/internal/config"
)

// ErrRetriesExhausted is returned when every allowed submission failed with a
// nonce conflict.
var ErrRetriesExhausted = errors.New("deploy: nonce conflict retries exhausted")

// RetryPolicy bounds resubmission after nonce conflicts. Each delay is drawn
// uniformly from [MinDelay, MaxDelay).
type RetryPolicy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration

	// sleep and jitter are replaced in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(n int64) int64
}

// DefaultRetryPolicy returns 10 attempts with 1-5s jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, MinDelay: time.Second, MaxDelay: 5 * time.Second}
}

// NewRetryPolicy builds a policy from configuration.
func NewRetryPolicy(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		MinDelay:    time.Duration(cfg.MinDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.MaxDelayMs) * time.Millisecond,
	}
}

// WithSleep returns a copy of p that waits with fn.
func (p RetryPolicy) WithSleep(fn func(ctx context.Context, d time.Duration) error) RetryPolicy {
	p.sleep = fn
	return p
}

// NextDelay draws the wait before the next submission.
func (p RetryPolicy) NextDelay() time.Duration {
	span := int64(p.MaxDelay - p.MinDelay)
	if span <= 0 {
		return p.MinDelay
	}
	jitter := p.jitter
	if jitter == nil {
		jitter = rand.Int64N
	}
	return p.MinDelay + time.Duration(jitter(span))
}

// Wait blocks for d or until ctx is done.
func (p RetryPolicy) Wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("deploy: retry wait: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// CanRetry reports whether another submission is allowed after attempts.
func (p RetryPolicy) CanRetry(attempts int) bool {
	return attempts < p.MaxAttempts
}
