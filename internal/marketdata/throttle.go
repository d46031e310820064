package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/quantfoundry/foresight/internal/contracts"
)

// ThrottledProvider wraps any MarketDataProvider with a shared rate limiter
// and bounded retries. Transient failures are retried with exponential
// backoff; MarketDataUnavailableError is a definitive answer and is returned
// immediately.
type ThrottledProvider struct {
	inner      contracts.MarketDataProvider
	limiter    *rate.Limiter
	maxElapsed time.Duration
}

// ThrottleConfig holds the lookup budget.
type ThrottleConfig struct {
	LookupsPerSecond float64
	Burst            int
	RetryMaxElapsed  time.Duration
}

// NewThrottledProvider wraps inner with the given budget.
func NewThrottledProvider(inner contracts.MarketDataProvider, cfg ThrottleConfig) *ThrottledProvider {
	return &ThrottledProvider{
		inner:      inner,
		limiter:    rate.NewLimiter(rate.Limit(cfg.LookupsPerSecond), cfg.Burst),
		maxElapsed: cfg.RetryMaxElapsed,
	}
}

// PriceAt resolves a price through the limiter, retrying transient errors.
func (p *ThrottledProvider) PriceAt(ctx context.Context, symbol string, ts time.Time) (float64, error) {
	var price float64

	operation := func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		got, err := p.inner.PriceAt(ctx, symbol, ts)
		if err != nil {
			var unavailable *contracts.MarketDataUnavailableError
			if errors.As(err, &unavailable) {
				return backoff.Permanent(err)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			return err
		}
		price = got
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = p.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return 0, err
	}
	return price, nil
}
