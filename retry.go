package remotefs

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryPolicy bounds a retry loop: at most maxRetries repeats, the first
// after delay, each following one twice as long.
type retryPolicy struct {
	maxRetries int
	delay      time.Duration
}

func newRetryPolicy(cfg Config) retryPolicy {
	return retryPolicy{maxRetries: cfg.RemoveRetries, delay: cfg.RetryDelay}
}

func (p retryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.delay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 64 * p.delay
	b.MaxElapsedTime = 0
	retries := p.maxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

// run calls op until it succeeds or fails with an error retryable rejects.
// notify is called before each wait. When the bound is hit the last
// retryable error is returned.
func (p retryPolicy) run(op func() error, retryable func(error) bool, notify func(err error, wait time.Duration)) error {
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(), notify)
}
