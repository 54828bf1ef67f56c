package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"newsalpha/internal/calendar"
	"newsalpha/internal/domain"
	"newsalpha/internal/marketdata"
	"newsalpha/internal/store"
)

func testLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading location: %v", err)
	}
	return loc
}

func testCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	loc := testLocation(t)
	var days []time.Time
	for d := time.Date(2024, 6, 3, 0, 0, 0, 0, loc); d.Month() == time.June; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday || d.Day() == 19 {
			continue
		}
		days = append(days, d)
	}
	return calendar.NewFromDays(loc, days)
}

func testConfig() Config {
	return Config{
		InitialCapital:       10000,
		PositionSizeFraction: 0.5,
		TakeProfit:           0.01,
		StopLoss:             0.005,
	}
}

// record builds an attributed, predicted move ready for simulation.
func record(newsID int64, publishedAt time.Time, sess domain.Session, begin, end float64, pred *domain.Direction) store.NewsPriceMove {
	idxBegin, idxEnd := 400.0, 401.0
	return store.NewsPriceMove{
		Event: domain.NewsEvent{
			ID:                 newsID,
			Ticker:             "ACME",
			Publisher:          "wire",
			PublishedAt:        publishedAt,
			PredictedDirection: pred,
		},
		Move: domain.PriceMove{
			NewsID:          newsID,
			Ticker:          "ACME",
			PublishedAt:     publishedAt,
			Session:         sess,
			BeginPrice:      &begin,
			EndPrice:        &end,
			IndexBeginPrice: &idxBegin,
			IndexEndPrice:   &idxEnd,
		},
	}
}

func direction(d domain.Direction) *domain.Direction { return &d }

// fakeScanner serves canned intraday bars keyed by symbol|day.
type fakeScanner struct {
	intraday map[string][]domain.PriceBar
}

func (p *fakeScanner) FetchDailyBars(context.Context, string, time.Time, time.Time) ([]domain.PriceBar, error) {
	return nil, nil
}

func (p *fakeScanner) FetchIntradayBars(_ context.Context, symbol string, day time.Time) ([]domain.PriceBar, error) {
	key := fmt.Sprintf("%s|%s", symbol, day.Format("2006-01-02"))
	bars, ok := p.intraday[key]
	if !ok {
		return nil, marketdata.ErrDataUnavailable
	}
	return bars, nil
}

type captureLedger struct {
	result *domain.BacktestResult
}

func (l *captureLedger) WriteLedger(result *domain.BacktestResult) error {
	l.result = result
	return nil
}

func minuteBar(loc *time.Location, ts string, high, low float64) domain.PriceBar {
	at, _ := time.ParseInLocation("2006-01-02 15:04", ts, loc)
	return domain.PriceBar{Timestamp: at, Open: low, High: high, Low: low, Close: low}
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestRunTargetExitDuringRegularSession(t *testing.T) {
	loc := testLocation(t)
	scanner := &fakeScanner{
		intraday: map[string][]domain.PriceBar{
			"ACME|2024-06-05": {
				// Before the 10:05 entry; must not trigger an exit.
				minuteBar(loc, "2024-06-05 10:00", 60.0, 49.9),
				minuteBar(loc, "2024-06-05 10:10", 50.2, 50.0),
				// Crosses the 50.5 target.
				minuteBar(loc, "2024-06-05 10:30", 50.6, 50.1),
				minuteBar(loc, "2024-06-05 11:00", 51.0, 50.7),
			},
		},
	}
	ledger := &captureLedger{}
	sim := NewSimulator(testConfig(), testCalendar(t), scanner, ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))

	published := time.Date(2024, 6, 5, 10, 2, 0, 0, loc)
	records := []store.NewsPriceMove{
		record(1, published, domain.SessionRegular, 50.0, 50.2, direction(domain.DirectionUp)),
	}

	result, err := sim.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(result.Trades))
	}
	tr := result.Trades[0]
	if tr.Direction != domain.TradeLong {
		t.Errorf("Direction = %s, want LONG", tr.Direction)
	}
	if tr.Shares != 100 {
		t.Errorf("Shares = %d, want 100 (floor of 5000/50)", tr.Shares)
	}
	if !approx(tr.TargetPrice, 50.5) || !approx(tr.StopPrice, 49.75) {
		t.Errorf("target/stop = %v/%v, want 50.5/49.75", tr.TargetPrice, tr.StopPrice)
	}
	if !tr.HitTarget || tr.HitStop {
		t.Errorf("hit flags = %v/%v, want target only", tr.HitTarget, tr.HitStop)
	}
	if !approx(tr.ExitPrice, 50.5) {
		t.Errorf("ExitPrice = %v, want 50.5", tr.ExitPrice)
	}
	wantExit := time.Date(2024, 6, 5, 10, 30, 0, 0, loc)
	if !tr.ExitTime.Equal(wantExit) {
		t.Errorf("ExitTime = %v, want %v", tr.ExitTime, wantExit)
	}
	if !approx(tr.PnL, 50.0) {
		t.Errorf("PnL = %v, want 50", tr.PnL)
	}
	if !approx(tr.CapitalAfter, 10050) {
		t.Errorf("CapitalAfter = %v, want 10050", tr.CapitalAfter)
	}
	if result.Metrics.WinRate != 1.0 {
		t.Errorf("WinRate = %v, want 1.0", result.Metrics.WinRate)
	}
	if ledger.result == nil || ledger.result.RunID != result.RunID {
		t.Error("ledger did not receive the run result")
	}
}

func TestRunShortStopExit(t *testing.T) {
	loc := testLocation(t)
	scanner := &fakeScanner{
		intraday: map[string][]domain.PriceBar{
			"ACME|2024-06-05": {
				// Rises through the 50.25 stop without touching the
				// 49.5 target.
				minuteBar(loc, "2024-06-05 10:10", 50.3, 50.0),
			},
		},
	}
	sim := NewSimulator(testConfig(), testCalendar(t), scanner, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	published := time.Date(2024, 6, 5, 10, 2, 0, 0, loc)
	records := []store.NewsPriceMove{
		record(1, published, domain.SessionRegular, 50.0, 49.8, direction(domain.DirectionDown)),
	}

	result, err := sim.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	tr := result.Trades[0]
	if tr.Direction != domain.TradeShort {
		t.Errorf("Direction = %s, want SHORT", tr.Direction)
	}
	if !tr.HitStop || tr.HitTarget {
		t.Errorf("hit flags = %v/%v, want stop only", tr.HitTarget, tr.HitStop)
	}
	if !approx(tr.ExitPrice, 50.25) {
		t.Errorf("ExitPrice = %v, want 50.25", tr.ExitPrice)
	}
	// Short losing trade: entry 50, exit 50.25, 100 shares.
	if !approx(tr.PnL, -25.0) {
		t.Errorf("PnL = %v, want -25", tr.PnL)
	}
}

func TestCheckExitTargetWinsStraddlingBar(t *testing.T) {
	bar := domain.PriceBar{High: 51.0, Low: 49.0}

	price, kind := checkExit(bar, domain.TradeLong, 50.5, 49.75)
	if kind != exitTarget || price != 50.5 {
		t.Errorf("long straddle = %v/%v, want target at 50.5", price, kind)
	}
	price, kind = checkExit(bar, domain.TradeShort, 49.5, 50.25)
	if kind != exitTarget || price != 49.5 {
		t.Errorf("short straddle = %v/%v, want target at 49.5", price, kind)
	}
}

func TestRunWindowEndExitWithoutScanner(t *testing.T) {
	loc := testLocation(t)
	sim := NewSimulator(testConfig(), testCalendar(t), nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	published := time.Date(2024, 6, 5, 10, 2, 0, 0, loc)
	records := []store.NewsPriceMove{
		record(1, published, domain.SessionRegular, 50.0, 50.2, direction(domain.DirectionUp)),
	}

	result, err := sim.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	tr := result.Trades[0]
	if tr.HitTarget || tr.HitStop {
		t.Error("expected a window-end exit")
	}
	if !approx(tr.ExitPrice, 50.2) {
		t.Errorf("ExitPrice = %v, want the window end price 50.2", tr.ExitPrice)
	}
	wantExit := time.Date(2024, 6, 5, 16, 0, 0, 0, loc)
	if !tr.ExitTime.Equal(wantExit) {
		t.Errorf("ExitTime = %v, want the session close", tr.ExitTime)
	}
}

func TestRunPnLPctUsesPositionBudget(t *testing.T) {
	loc := testLocation(t)
	sim := NewSimulator(testConfig(), testCalendar(t), nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Budget 5000 at entry 66 floors to 75 shares, leaving 50 unspent; the
	// return is still measured against the full budget.
	published := time.Date(2024, 6, 5, 10, 2, 0, 0, loc)
	records := []store.NewsPriceMove{
		record(1, published, domain.SessionRegular, 66.0, 67.0, direction(domain.DirectionUp)),
	}

	result, err := sim.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	tr := result.Trades[0]
	if tr.Shares != 75 {
		t.Fatalf("Shares = %d, want 75", tr.Shares)
	}
	if !approx(tr.PnL, 75.0) {
		t.Errorf("PnL = %v, want 75", tr.PnL)
	}
	if !approx(tr.PnLPct, 1.5) {
		t.Errorf("PnLPct = %v, want 1.5 (pnl over the 5000 budget)", tr.PnLPct)
	}
}

func TestRunSequentialCompounding(t *testing.T) {
	loc := testLocation(t)
	cfg := Config{
		InitialCapital:       10000,
		PositionSizeFraction: 1.0,
		TakeProfit:           0.5,
		StopLoss:             0.5,
	}
	sim := NewSimulator(cfg, testCalendar(t), nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	records := []store.NewsPriceMove{
		record(1, time.Date(2024, 6, 5, 8, 0, 0, 0, loc), domain.SessionPreMarket, 100, 110, direction(domain.DirectionUp)),
		record(2, time.Date(2024, 6, 6, 8, 0, 0, 0, loc), domain.SessionPreMarket, 100, 99, direction(domain.DirectionUp)),
	}

	result, err := sim.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(result.Trades))
	}
	first, second := result.Trades[0], result.Trades[1]
	if first.Shares != 100 || !approx(first.PnL, 1000) || !approx(first.CapitalAfter, 11000) {
		t.Errorf("first trade = %d shares, pnl %v, capital %v; want 100, 1000, 11000",
			first.Shares, first.PnL, first.CapitalAfter)
	}
	// Second trade sizes off the grown account.
	if second.Shares != 110 || !approx(second.PnL, -110) || !approx(second.CapitalAfter, 10890) {
		t.Errorf("second trade = %d shares, pnl %v, capital %v; want 110, -110, 10890",
			second.Shares, second.PnL, second.CapitalAfter)
	}
	if !approx(result.Metrics.TotalPnL, 890) {
		t.Errorf("TotalPnL = %v, want 890", result.Metrics.TotalPnL)
	}
	if !approx(cfg.InitialCapital+result.Metrics.TotalPnL, second.CapitalAfter) {
		t.Error("capital is not conserved across the trade sequence")
	}
	if result.Metrics.WinRate != 0.5 {
		t.Errorf("WinRate = %v, want 0.5", result.Metrics.WinRate)
	}
}

func TestRunNoTradableRecords(t *testing.T) {
	loc := testLocation(t)
	sim := NewSimulator(testConfig(), testCalendar(t), nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// No prediction on either record.
	records := []store.NewsPriceMove{
		record(1, time.Date(2024, 6, 5, 8, 0, 0, 0, loc), domain.SessionPreMarket, 100, 102, nil),
		record(2, time.Date(2024, 6, 6, 8, 0, 0, 0, loc), domain.SessionPreMarket, 100, 102, nil),
	}

	_, err := sim.Run(context.Background(), records)
	if !errors.Is(err, ErrNoTrades) {
		t.Fatalf("err = %v, want ErrNoTrades", err)
	}
}

func TestRunExclusions(t *testing.T) {
	loc := testLocation(t)
	sim := NewSimulator(testConfig(), testCalendar(t), nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	incomplete := record(2, time.Date(2024, 6, 5, 8, 30, 0, 0, loc), domain.SessionPreMarket, 100, 102, direction(domain.DirectionUp))
	incomplete.Move.EndPrice = nil
	// Price far above the per-trade budget: zero whole shares.
	unaffordable := record(3, time.Date(2024, 6, 5, 9, 0, 0, 0, loc), domain.SessionPreMarket, 9999999, 10000000, direction(domain.DirectionUp))

	records := []store.NewsPriceMove{
		record(1, time.Date(2024, 6, 5, 8, 0, 0, 0, loc), domain.SessionPreMarket, 100, 102, direction(domain.DirectionUp)),
		incomplete,
		unaffordable,
		record(4, time.Date(2024, 6, 5, 9, 15, 0, 0, loc), domain.SessionPreMarket, 100, 101, nil),
	}

	result, err := sim.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Metrics.TotalTrades != 1 {
		t.Errorf("TotalTrades = %d, want 1", result.Metrics.TotalTrades)
	}
	if result.Metrics.ExcludedCount != 3 {
		t.Errorf("ExcludedCount = %d, want 3", result.Metrics.ExcludedCount)
	}
}

func TestMetricsAnnualization(t *testing.T) {
	loc := testLocation(t)
	sim := NewSimulator(testConfig(), testCalendar(t), nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	t.Run("multi-day span scales by 365", func(t *testing.T) {
		// Pre-market entries exit at the open they enter on, so the span
		// runs 09:30 June 5 to 09:30 June 28: exactly 23 days.
		records := []store.NewsPriceMove{
			record(1, time.Date(2024, 6, 5, 8, 0, 0, 0, loc), domain.SessionPreMarket, 50, 51, direction(domain.DirectionUp)),
			record(2, time.Date(2024, 6, 28, 8, 0, 0, 0, loc), domain.SessionPreMarket, 50, 51, direction(domain.DirectionUp)),
		}
		result, err := sim.Run(context.Background(), records)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		m := result.Metrics
		want := m.TotalReturnPct * 365 / 23
		if !approx(m.AnnualizedReturnPct, want) {
			t.Errorf("AnnualizedReturnPct = %v, want %v", m.AnnualizedReturnPct, want)
		}
	})

	t.Run("sub-day span is unscaled", func(t *testing.T) {
		records := []store.NewsPriceMove{
			record(1, time.Date(2024, 6, 5, 8, 0, 0, 0, loc), domain.SessionPreMarket, 50, 51, direction(domain.DirectionUp)),
		}
		result, err := sim.Run(context.Background(), records)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		m := result.Metrics
		if !approx(m.AnnualizedReturnPct, m.TotalReturnPct) {
			t.Errorf("AnnualizedReturnPct = %v, want unscaled %v", m.AnnualizedReturnPct, m.TotalReturnPct)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }},
		{"negative capital", func(c *Config) { c.InitialCapital = -1 }},
		{"zero position size", func(c *Config) { c.PositionSizeFraction = 0 }},
		{"oversized position", func(c *Config) { c.PositionSizeFraction = 1.5 }},
		{"zero take profit", func(c *Config) { c.TakeProfit = 0 }},
		{"zero stop loss", func(c *Config) { c.StopLoss = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
	if err := testConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
