package ledger

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// RetryPolicy bounds how often a retryable store write is attempted.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryPolicy is three attempts with 50ms, 100ms backoff.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: 50 * time.Millisecond}

// backOff builds the schedule: BaseDelay doubling after every failed attempt,
// no jitter, at most Attempts calls in total, cut short when ctx is done.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. The delay doubles after every failed attempt.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	op := func() error {
		err := fn(ctx)
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.WithError(err).WithField("retry_in", next).Debug("Retrying after transient error")
	}
	return backoff.RetryNotify(op, policy.backOff(ctx), notify)
}
