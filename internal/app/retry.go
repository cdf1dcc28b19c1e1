package app

import (
	"context"
	"time"

	"gavel-auction-engine/internal/domain/shared"

	"github.com/cenkalti/backoff/v4"
)

// retryOnConflict reruns fn while it loses optimistic-concurrency races, up to
// attempts times in total. Waits start at initial and grow exponentially with
// jitter; a zero initial retries immediately. Any other outcome is returned
// as is.
func retryOnConflict(ctx context.Context, attempts int, initial time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var policy backoff.BackOff = &backoff.ZeroBackOff{}
	if initial > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = initial
		exp.MaxInterval = 8 * initial
		exp.MaxElapsedTime = 0
		policy = exp
	}
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !shared.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
