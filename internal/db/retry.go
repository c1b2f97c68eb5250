package db

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zulandar/locallm/internal/config"
)

// Default retry policy values.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMultiplier      = 2.0
)

// RetryPolicy retries transient persistence failures with exponential
// backoff. Non-transient errors stop the loop on the first attempt.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	// Retryable decides which errors are retried; defaults to IsTransient.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		Multiplier:      DefaultMultiplier,
	}
}

// RetryPolicyFromConfig builds a policy from the database section.
func RetryPolicyFromConfig(cfg config.DatabaseConfig) *RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.RetryAttempts > 0 {
		p.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryInitialInterval > 0 {
		p.InitialInterval = cfg.RetryInitialInterval
	}
	return p
}

// Do runs op until it succeeds, fails with a non-retryable error, runs out
// of attempts, or ctx is done. The returned error is classified with
// Classify; a nil policy runs op exactly once.
func (p *RetryPolicy) Do(ctx context.Context, op func() error) error {
	if p == nil {
		return Classify(op())
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	if p.Multiplier > 0 {
		eb.Multiplier = p.Multiplier
	}
	eb.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	err := backoff.Retry(func() error {
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	return Classify(err)
}
