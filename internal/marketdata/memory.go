package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quantfoundry/foresight/internal/contracts"
)

// PricePoint is one observed close price.
type PricePoint struct {
	Time  time.Time
	Price float64
}

// MemoryProvider serves historical prices from an in-memory series. It backs
// tests and offline replays. Lookups resolve to the latest point at or before
// the requested timestamp, but only within MaxGap; anything further back is
// reported as unavailable rather than served stale.
type MemoryProvider struct {
	mu     sync.RWMutex
	series map[string][]PricePoint

	// MaxGap bounds how far behind the requested timestamp the resolved
	// point may be. Zero means exact matches only.
	MaxGap time.Duration
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider(maxGap time.Duration) *MemoryProvider {
	return &MemoryProvider{
		series: make(map[string][]PricePoint),
		MaxGap: maxGap,
	}
}

// Add appends price points for a symbol, keeping the series sorted.
func (p *MemoryProvider) Add(symbol string, points ...PricePoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := append(p.series[symbol], points...)
	sort.Slice(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })
	p.series[symbol] = s
}

// PriceAt resolves the close price for symbol at ts.
func (p *MemoryProvider) PriceAt(ctx context.Context, symbol string, ts time.Time) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	s := p.series[symbol]
	// first point strictly after ts
	i := sort.Search(len(s), func(i int) bool { return s[i].Time.After(ts) })
	if i == 0 {
		return 0, &contracts.MarketDataUnavailableError{Symbol: symbol, At: ts}
	}

	point := s[i-1]
	if ts.Sub(point.Time) > p.MaxGap {
		return 0, &contracts.MarketDataUnavailableError{Symbol: symbol, At: ts}
	}
	return point.Price, nil
}
