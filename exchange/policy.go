package exchange

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Sleeper suspends a retry loop. Implementations must return early with
// ctx.Err() when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// maxRetryDelay caps backoff_factor^n so large retry budgets cannot overflow.
const maxRetryDelay = time.Hour

// retryPolicy yields the pause before each retry of one request. Transient
// failures wait backoff_factor^n seconds, n being the retries already spent;
// rate limits always wait the exchange's fixed ban window.
type retryPolicy struct {
	transient *backoff.ExponentialBackOff
	ban       *backoff.ConstantBackOff
}

func newRetryPolicy(factor float64, ban time.Duration) *retryPolicy {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = time.Second
	exp.Multiplier = factor
	exp.RandomizationFactor = 0
	exp.MaxInterval = maxRetryDelay
	exp.MaxElapsedTime = 0
	exp.Reset()
	return &retryPolicy{
		transient: exp,
		ban:       backoff.NewConstantBackOff(ban),
	}
}

// next returns the delay for a retry caused by kind. The exponential sequence
// advances on every retry so its exponent tracks the overall retry count.
func (p *retryPolicy) next(kind Kind) time.Duration {
	d := p.transient.NextBackOff()
	if kind == KindRateLimited {
		return p.ban.NextBackOff()
	}
	return d
}
