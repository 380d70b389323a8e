package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/refset/freight-risk-quoting/internal/apperr"
)

// RetryPolicy governs transient reads. MaxTries counts the first attempt.
type RetryPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxTries        uint
}

// DefaultRetryPolicy waits 100ms, 400ms and 1.6s between four attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{InitialInterval: 100 * time.Millisecond, Multiplier: 4, MaxTries: 4}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute
	return b
}

// retry calls fn until it succeeds, fails with a non-transient error, or the policy is
// exhausted. Exhausted transient failures surface as Service with the same detail.
func retry[T any](ctx context.Context, p RetryPolicy, log *zap.Logger, op string, fn func() (T, error)) (T, error) {
	attempt := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err == nil || apperr.KindOf(err) == apperr.Transient && ctx.Err() == nil {
			return v, err
		}
		return v, backoff.Permanent(err)
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(p.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn("transient read failed, retrying",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		}),
	)
	if err == nil {
		return v, nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	var zero T
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return zero, cancelled(err)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.Transient {
		return zero, apperr.Wrap(apperr.Service, ae.Detail, err)
	}
	return zero, err
}
