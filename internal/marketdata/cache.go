package marketdata

import (
	"context"
	"sync"
	"time"

	"newsalpha/internal/domain"
)

// BarCache memoizes provider responses for one attribution run. It is an
// explicit object created per run and shared by that run's workers; it is
// never package state, so parallel runs stay independent and tests stay
// deterministic.
type BarCache struct {
	mu       sync.Mutex
	daily    map[string][]domain.PriceBar
	intraday map[string][]domain.PriceBar
}

// NewBarCache creates an empty BarCache.
func NewBarCache() *BarCache {
	return &BarCache{
		daily:    make(map[string][]domain.PriceBar),
		intraday: make(map[string][]domain.PriceBar),
	}
}

func dailyKey(symbol string, start, end time.Time) string {
	return symbol + "|" + start.UTC().Format(time.RFC3339) + "|" + end.UTC().Format(time.RFC3339)
}

func intradayKey(symbol string, day time.Time) string {
	return symbol + "|" + day.Format("2006-01-02")
}

// Compile-time interface check.
var _ Provider = (*CachingProvider)(nil)

// CachingProvider wraps a Provider with a BarCache. Successful responses,
// including empty ones, are cached; errors are not, so transient failures
// remain retryable.
type CachingProvider struct {
	inner Provider
	cache *BarCache
}

// NewCachingProvider wraps inner with the given per-run cache.
func NewCachingProvider(inner Provider, cache *BarCache) *CachingProvider {
	return &CachingProvider{inner: inner, cache: cache}
}

// FetchDailyBars serves from the cache when the exact range was fetched
// before, otherwise delegates to the wrapped provider.
func (p *CachingProvider) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	key := dailyKey(symbol, start, end)

	p.cache.mu.Lock()
	if bars, ok := p.cache.daily[key]; ok {
		p.cache.mu.Unlock()
		return bars, nil
	}
	p.cache.mu.Unlock()

	bars, err := p.inner.FetchDailyBars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	p.cache.mu.Lock()
	p.cache.daily[key] = bars
	p.cache.mu.Unlock()
	return bars, nil
}

// FetchIntradayBars serves from the cache when the day was fetched before,
// otherwise delegates to the wrapped provider.
func (p *CachingProvider) FetchIntradayBars(ctx context.Context, symbol string, day time.Time) ([]domain.PriceBar, error) {
	key := intradayKey(symbol, day)

	p.cache.mu.Lock()
	if bars, ok := p.cache.intraday[key]; ok {
		p.cache.mu.Unlock()
		return bars, nil
	}
	p.cache.mu.Unlock()

	bars, err := p.inner.FetchIntradayBars(ctx, symbol, day)
	if err != nil {
		return nil, err
	}

	p.cache.mu.Lock()
	p.cache.intraday[key] = bars
	p.cache.mu.Unlock()
	return bars, nil
}
