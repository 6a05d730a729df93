// Package retry decides when a catalog API call is retried and how long to wait.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// Classifier reports whether an error is worth another attempt.
type Classifier func(err error) bool

// Config bounds the exponential backoff.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// ExponentialPolicy retries classified errors with jittered exponential backoff.
type ExponentialPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	retryable   Classifier
	jitter      func(limit time.Duration) time.Duration
}

// NewExponentialPolicy builds a policy. Zero values fall back to 5 attempts,
// 1s base delay and a 30s cap.
func NewExponentialPolicy(cfg Config, retryable Classifier) *ExponentialPolicy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return &ExponentialPolicy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		retryable:   retryable,
		jitter:      randomJitter,
	}
}

// MaxAttempts reports the total number of attempts allowed, including the first.
func (p *ExponentialPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// MaxDelay reports the ceiling applied to any single wait.
func (p *ExponentialPolicy) MaxDelay() time.Duration {
	return p.maxDelay
}

// ShouldRetry decides whether the error is retryable after the given attempt (1-based).
func (p *ExponentialPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.retryable == nil {
		return false
	}
	return p.retryable(err)
}

// Backoff returns the wait before the attempt following the given one (1-based).
// The result lies in [d/2, d) where d = min(base*2^(attempt-1), max).
func (p *ExponentialPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + p.jitter(half)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
