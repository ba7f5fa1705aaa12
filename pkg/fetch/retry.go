package fetch

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
)

// Operation performs one attempt; attempt is 0-based
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Backoff returns the delay after a failed attempt (0-based), before jitter:
// min(BaseDelay * 2^attempt, MaxDelay)
func Backoff(policy config.RetryPolicy, attempt int) time.Duration {
	d := policy.BaseDelay
	for i := 0; i < attempt; i++ {
		if d >= policy.MaxDelay {
			break
		}
		d *= 2
	}
	return min(d, policy.MaxDelay)
}

func jitter(maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(maxJitter)))
}

// Retry runs op up to policy.MaxRetries+1 times. It returns the first success, or the last
// error as soon as it is non-retryable or the attempts are exhausted, together with the
// number of attempts actually made.
func Retry[T any](ctx context.Context, policy config.RetryPolicy, log *logrus.Entry, op Operation[T]) (T, int, error) {
	var zero T
	var lastErr error

	if err := ctx.Err(); err != nil {
		return zero, 0, err
	}

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		v, err := op(ctx, attempt)
		if err == nil {
			return v, attempt + 1, nil
		}
		lastErr = err

		if attempt == policy.MaxRetries || !IsRetryable(err, policy) {
			return zero, attempt + 1, lastErr
		}

		delay := Backoff(policy, attempt) + jitter(policy.MaxJitter)
		log.WithFields(logrus.Fields{
			"attempt":     attempt + 1,
			"max_retries": policy.MaxRetries,
			"delay":       delay,
			"error_kind":  Classify(err),
		}).Warnf("Attempt failed, retrying: %v", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			log.Warnf("Retry wait cancelled: %v", ctx.Err())
			return zero, attempt + 1, lastErr
		}
	}
	return zero, policy.MaxRetries + 1, lastErr
}
