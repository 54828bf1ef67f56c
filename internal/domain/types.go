// Package domain defines the core types shared across the newsalpha
// platform: news events, price bars, attributed price moves, and the
// trade ledger produced by backtests.
package domain

import "time"

// Market identifies an exchange group.
type Market string

const (
	MarketUS Market = "us"
)

// Session classifies a timestamp relative to exchange hours.
type Session string

const (
	SessionPreMarket   Session = "pre_market"
	SessionRegular     Session = "regular_market"
	SessionAfterMarket Session = "after_market"
)

// Direction is a predicted or realized price move direction.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// TradeDirection is the side taken by a simulated trade.
type TradeDirection string

const (
	TradeLong  TradeDirection = "LONG"
	TradeShort TradeDirection = "SHORT"
)

// NewsEvent is a published news item tied to a tradable instrument. Events
// are created by the upstream ingestion pipeline and are immutable here.
type NewsEvent struct {
	ID                 int64
	Ticker             string
	Publisher          string
	Category           string
	PublishedAt        time.Time // carries the source timezone
	PredictedDirection *Direction
	PredictedMagnitude *float64 // fraction, e.g. 0.02 for 2%
}

// PriceBar is a single OHLCV data point from the market data provider,
// either daily or intraday (1-minute) granularity.
type PriceBar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// PriceMove is the persisted attribution of a market price move to a news
// event. At most one PriceMove exists per news ID; re-running attribution
// overwrites the stored row.
type PriceMove struct {
	NewsID      int64
	Ticker      string
	PublishedAt time.Time
	Session     Session

	BeginPrice      *float64
	EndPrice        *float64
	IndexBeginPrice *float64
	IndexEndPrice   *float64
	Volume          *int64

	PriceChange         float64
	PriceChangePct      float64
	IndexPriceChangePct float64
	Alpha               float64
	ActualDirection     Direction

	ComputedAt time.Time
}

// Complete reports whether all four prices were resolved. Incomplete moves
// signal a failed attribution and are never persisted.
func (pm *PriceMove) Complete() bool {
	return pm.BeginPrice != nil && pm.EndPrice != nil &&
		pm.IndexBeginPrice != nil && pm.IndexEndPrice != nil
}

// Trade is one simulated trade in a backtest ledger.
type Trade struct {
	EntryTime    time.Time
	ExitTime     time.Time
	Ticker       string
	Direction    TradeDirection
	Shares       int64
	EntryPrice   float64
	ExitPrice    float64
	TargetPrice  float64
	StopPrice    float64
	HitTarget    bool
	HitStop      bool
	PnL          float64
	PnLPct       float64
	CapitalAfter float64
	NewsID       int64
}

// Metrics summarizes one backtest run.
type Metrics struct {
	TotalTrades    int
	WinningTrades  int
	WinRate        float64 // fraction of trades with positive PnL
	TotalPnL       float64
	TotalReturnPct float64
	// AnnualizedReturnPct scales the total return by 365/days. For spans
	// under one day it reports the unscaled total return.
	AnnualizedReturnPct float64
	ExcludedCount       int
}

// BacktestResult is the ordered trade ledger plus summary metrics from one
// backtest run. It exists only for the lifetime of the run.
type BacktestResult struct {
	RunID   string
	Trades  []Trade
	Metrics Metrics
}
