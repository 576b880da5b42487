// Package retry re-runs operations that failed for transient reasons:
// dependency outages and optimistic-lock conflicts. Validation, not-found and
// state-conflict errors are returned immediately.
package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 25 * time.Millisecond
	defaultMaxDelay    = 500 * time.Millisecond
)

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// FromConfig maps env configuration onto a Policy.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}
}

// Default is used when a service is built without an explicit policy.
func Default() Policy {
	return Policy{MaxAttempts: defaultMaxAttempts, BaseDelay: defaultBaseDelay, MaxDelay: defaultMaxDelay}
}

// Disabled runs the operation exactly once.
func Disabled() Policy {
	return Policy{MaxAttempts: 1}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

func (p Policy) backoff() goretry.Backoff {
	b := goretry.NewExponential(p.BaseDelay)
	b = goretry.WithJitterPercent(10, b)
	b = goretry.WithCappedDuration(p.MaxDelay, b)
	return goretry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeDependency, pkgerrors.CodeCartVersionConflict:
		return pkgerrors.As(err) != nil
	default:
		return false
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted. The last error is returned unwrapped.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.normalized()
	return goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if Retryable(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
}
