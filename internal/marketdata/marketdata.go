// Package marketdata defines the market data provider interface used by
// attribution and backtesting, an Alpaca-backed implementation, and a
// per-run bar cache.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newsalpha/internal/domain"
)

// ErrDataUnavailable signals that the provider has no bars for the
// requested date or range. It is non-fatal: the affected event is skipped
// and counted, never retried.
var ErrDataUnavailable = errors.New("market data unavailable")

// ProviderError is a transient provider failure (network, timeout, rate
// limit). Callers retry these with backoff; exhausted retries surface as
// failed items.
type ProviderError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// Provider fetches OHLCV bars for a symbol. Implementations must bound
// every fetch with a timeout and report transient failures as
// *ProviderError, never as missing data.
type Provider interface {
	// FetchDailyBars returns daily bars with timestamps in [start, end].
	FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error)

	// FetchIntradayBars returns 1-minute bars for the trading day starting
	// at the exchange-local midnight day. Days older than the provider's
	// intraday lookback window fail with ErrDataUnavailable.
	FetchIntradayBars(ctx context.Context, symbol string, day time.Time) ([]domain.PriceBar, error)
}
