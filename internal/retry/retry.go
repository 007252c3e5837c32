// Package retry implements the bounded exponential-backoff-with-jitter
// policy shared by root registration and tombstone deletion.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Classifier reports whether an error is worth retrying. Each domain
// package (cloudfiles, gateway) supplies its own based on its own error
// taxonomy; Policy stays domain-agnostic.
type Classifier func(err error) (retryable bool)

// Policy defines exponential backoff with jitter over a bounded attempt
// count.
type Policy struct {
	MaxAttempts int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64

	Classify Classifier
	Logger   *zap.Logger
}

// RootRegistrationPolicy tunes the bounded exponential backoff used for
// sync root registration, which only needs a handful of attempts to ride
// out a directory not yet visible or a prior unregister still draining.
func RootRegistrationPolicy(logger *zap.Logger, classify Classifier) *Policy {
	return &Policy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.3,
		Classify:     classify,
		Logger:       logger,
	}
}

// TombstoneDeletionPolicy is the safe-deletion backoff for a busy sync
// root directory: six attempts with delays starting at 250ms and capped at
// 5s.
func TombstoneDeletionPolicy(logger *zap.Logger, classify Classifier) *Policy {
	return &Policy{
		MaxAttempts:  6,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
		Classify:     classify,
		Logger:       logger,
	}
}

// Func is an operation subject to retry.
type Func func() error

// Do runs fn, retrying on failure per the policy until MaxAttempts is
// exhausted, the classifier declines a retry, or ctx is cancelled.
func (p *Policy) Do(ctx context.Context, operation string, fn Func) error {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				p.Logger.Info("operation succeeded after retries",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
				)
			}
			return nil
		}
		lastErr = err

		if p.Classify != nil && !p.Classify(err) {
			return fmt.Errorf("%s: not retryable: %w", operation, err)
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.calculateDelay(attempt)
		p.Logger.Warn("operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: retry aborted: %w", operation, ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", operation, p.MaxAttempts, lastErr)
}

func (p *Policy) calculateDelay(attempt int) time.Duration {
	exponent := float64(attempt - 1)
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, exponent)
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		delay -= rand.Float64() * delay * p.Jitter
	}
	return time.Duration(delay)
}
