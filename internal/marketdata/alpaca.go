package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/time/rate"

	"newsalpha/internal/domain"
)

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

const requestTimeout = 30 * time.Second

// AlpacaProvider implements Provider using the Alpaca market-data API. All
// requests share a token-bucket rate limiter sized to the account's
// per-minute budget, and every HTTP request carries a hard timeout.
type AlpacaProvider struct {
	client       *marketdata.Client
	limiter      *rate.Limiter
	lookbackDays int
	now          func() time.Time
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials,
// rate budget (requests per minute), and intraday lookback window in days.
func NewAlpacaProvider(apiKey, apiSecret, dataURL string, ratePerMin, intradayLookbackDays int) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if ratePerMin <= 0 {
		ratePerMin = 200
	}

	return &AlpacaProvider{
		client:       marketdata.NewClient(opts),
		limiter:      rate.NewLimiter(rate.Limit(float64(ratePerMin)/60.0), ratePerMin/10+1),
		lookbackDays: intradayLookbackDays,
		now:          time.Now,
	}
}

// FetchDailyBars returns daily bars for symbol in [start, end].
func (p *AlpacaProvider) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	bars, err := p.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, &ProviderError{Op: "daily bars", Symbol: symbol, Err: err}
	}
	return toDomainBars(symbol, bars), nil
}

// FetchIntradayBars returns 1-minute bars for the trading day beginning at
// the exchange-local midnight day.
func (p *AlpacaProvider) FetchIntradayBars(ctx context.Context, symbol string, day time.Time) ([]domain.PriceBar, error) {
	if p.lookbackDays > 0 && p.now().Sub(day) > time.Duration(p.lookbackDays)*24*time.Hour {
		return nil, fmt.Errorf("%w: %s on %s is outside the %d-day intraday window",
			ErrDataUnavailable, symbol, day.Format("2006-01-02"), p.lookbackDays)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	bars, err := p.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     day,
		End:       day.AddDate(0, 0, 1),
		Feed:      "sip",
	})
	if err != nil {
		return nil, &ProviderError{Op: "intraday bars", Symbol: symbol, Err: err}
	}
	return toDomainBars(symbol, bars), nil
}

func toDomainBars(symbol string, bars []marketdata.Bar) []domain.PriceBar {
	out := make([]domain.PriceBar, 0, len(bars))
	for _, b := range bars {
		out = append(out, domain.PriceBar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(b.Volume),
		})
	}
	return out
}
