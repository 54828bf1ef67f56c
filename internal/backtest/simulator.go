// Package backtest simulates an expected-move trading strategy over
// attributed price moves: enter each predicted event at its window begin
// price, exit at the take-profit target, the stop, or the window end,
// compounding a single capital account sequentially.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"newsalpha/internal/calendar"
	"newsalpha/internal/domain"
	"newsalpha/internal/marketdata"
	"newsalpha/internal/session"
	"newsalpha/internal/store"
)

// ErrNoTrades indicates that no record in the input produced a trade.
var ErrNoTrades = errors.New("backtest: no tradable records")

// Config holds the strategy parameters of one simulation.
type Config struct {
	// InitialCapital is the starting account balance.
	InitialCapital float64
	// PositionSizeFraction is the fraction of current capital committed
	// per trade.
	PositionSizeFraction float64
	// TakeProfit is the profit target as a fraction of the entry price.
	TakeProfit float64
	// StopLoss is the stop distance as a fraction of the entry price.
	StopLoss float64
}

// Validate checks the parameters for a runnable simulation.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive, got %v", c.InitialCapital)
	}
	if c.PositionSizeFraction <= 0 || c.PositionSizeFraction > 1 {
		return fmt.Errorf("position size fraction must be in (0, 1], got %v", c.PositionSizeFraction)
	}
	if c.TakeProfit <= 0 {
		return fmt.Errorf("take profit must be positive, got %v", c.TakeProfit)
	}
	if c.StopLoss <= 0 {
		return fmt.Errorf("stop loss must be positive, got %v", c.StopLoss)
	}
	return nil
}

// Simulator replays attributed price moves as a trade sequence. Scanner and
// ledger are optional: without a scanner every regular-session trade exits
// at the window end price; without a ledger writer the result is not
// persisted.
type Simulator struct {
	cfg     Config
	cal     *calendar.Calendar
	scanner marketdata.Provider
	ledger  store.LedgerWriter
	log     *slog.Logger
}

// NewSimulator creates a Simulator. scanner and ledger may be nil.
func NewSimulator(cfg Config, cal *calendar.Calendar, scanner marketdata.Provider, ledger store.LedgerWriter, log *slog.Logger) *Simulator {
	if log == nil {
		log = slog.Default()
	}
	return &Simulator{
		cfg:     cfg,
		cal:     cal,
		scanner: scanner,
		ledger:  ledger,
		log:     log,
	}
}

// Run simulates the strategy over the given records in published-time
// order. Records without a directional prediction, with unresolved prices,
// or too expensive for the position budget are excluded and counted.
func (s *Simulator) Run(ctx context.Context, records []store.NewsPriceMove) (*domain.BacktestResult, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Event.PublishedAt.Before(records[j].Event.PublishedAt)
	})

	result := &domain.BacktestResult{RunID: uuid.NewString()}
	log := s.log.With("task", "backtest", "run_id", result.RunID)

	capital := s.cfg.InitialCapital
	excluded := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		trade, ok := s.simulateTrade(ctx, rec, capital, log)
		if !ok {
			excluded++
			continue
		}
		capital += trade.PnL
		trade.CapitalAfter = capital
		result.Trades = append(result.Trades, trade)
	}

	if len(result.Trades) == 0 {
		return nil, fmt.Errorf("%w: %d records, %d excluded", ErrNoTrades, len(records), excluded)
	}

	result.Metrics = s.computeMetrics(result.Trades, excluded)
	log.Info("backtest finished",
		"trades", result.Metrics.TotalTrades,
		"excluded", excluded,
		"win_rate", fmt.Sprintf("%.2f", result.Metrics.WinRate),
		"total_return_pct", fmt.Sprintf("%.2f", result.Metrics.TotalReturnPct),
		"final_capital", fmt.Sprintf("%.2f", capital),
	)

	if s.ledger != nil {
		if err := s.ledger.WriteLedger(result); err != nil {
			return nil, fmt.Errorf("persisting ledger: %w", err)
		}
	}
	return result, nil
}

// simulateTrade turns one attributed record into a trade. ok is false when
// the record is excluded. CapitalAfter is filled in by the caller.
func (s *Simulator) simulateTrade(ctx context.Context, rec store.NewsPriceMove, capital float64, log *slog.Logger) (domain.Trade, bool) {
	ev, pm := rec.Event, rec.Move
	if ev.PredictedDirection == nil || !pm.Complete() {
		return domain.Trade{}, false
	}

	entryPrice := *pm.BeginPrice
	if entryPrice <= 0 {
		return domain.Trade{}, false
	}
	budget := capital * s.cfg.PositionSizeFraction
	shares := int64(math.Floor(budget / entryPrice))
	if shares < 1 {
		log.Warn("position budget below one share",
			"news_id", ev.ID, "ticker", ev.Ticker, "price", entryPrice, "budget", budget)
		return domain.Trade{}, false
	}

	var direction domain.TradeDirection
	var target, stop float64
	if *ev.PredictedDirection == domain.DirectionUp {
		direction = domain.TradeLong
		target = entryPrice * (1 + s.cfg.TakeProfit)
		stop = entryPrice * (1 - s.cfg.StopLoss)
	} else {
		direction = domain.TradeShort
		target = entryPrice * (1 - s.cfg.TakeProfit)
		stop = entryPrice * (1 + s.cfg.StopLoss)
	}

	entryTime, err := session.EntryTime(pm.PublishedAt, pm.Session, s.cal)
	if err != nil {
		// Entry outside the loaded calendar; keep the published time so
		// the ledger stays ordered.
		entryTime = pm.PublishedAt.In(s.cal.Location())
	}

	exitPrice := *pm.EndPrice
	exitTime := s.windowEnd(entryTime, pm.Session)
	hitTarget, hitStop := false, false

	// Intraday exit scan only applies when the holding window spans the
	// regular session.
	if s.scanner != nil && pm.Session == domain.SessionRegular {
		day := time.Date(entryTime.Year(), entryTime.Month(), entryTime.Day(), 0, 0, 0, 0, s.cal.Location())
		bars, err := s.scanner.FetchIntradayBars(ctx, pm.Ticker, day)
		switch {
		case errors.Is(err, marketdata.ErrDataUnavailable):
			// Window-end exit stands.
		case err != nil:
			log.Warn("intraday scan failed, exiting at window end",
				"news_id", ev.ID, "ticker", ev.Ticker, "err", err)
		default:
			for _, b := range bars {
				if b.Timestamp.Before(entryTime) {
					continue
				}
				if !b.Timestamp.Before(exitTime) {
					break
				}
				price, hit := checkExit(b, direction, target, stop)
				if hit == exitNone {
					continue
				}
				exitPrice = price
				exitTime = b.Timestamp
				hitTarget = hit == exitTarget
				hitStop = hit == exitStop
				break
			}
		}
	}

	var pnl float64
	if direction == domain.TradeLong {
		pnl = (exitPrice - entryPrice) * float64(shares)
	} else {
		pnl = (entryPrice - exitPrice) * float64(shares)
	}

	return domain.Trade{
		EntryTime:   entryTime,
		ExitTime:    exitTime,
		Ticker:      pm.Ticker,
		Direction:   direction,
		Shares:      shares,
		EntryPrice:  entryPrice,
		ExitPrice:   exitPrice,
		TargetPrice: target,
		StopPrice:   stop,
		HitTarget:   hitTarget,
		HitStop:     hitStop,
		PnL:         pnl,
		PnLPct:      pnl / budget * 100,
		NewsID:      ev.ID,
	}, true
}

type exitKind int

const (
	exitNone exitKind = iota
	exitTarget
	exitStop
)

// checkExit tests one bar against the exit levels. When a bar straddles
// both levels the target wins.
func checkExit(b domain.PriceBar, direction domain.TradeDirection, target, stop float64) (float64, exitKind) {
	if direction == domain.TradeLong {
		if b.High >= target {
			return target, exitTarget
		}
		if b.Low <= stop {
			return stop, exitStop
		}
		return 0, exitNone
	}
	if b.Low <= target {
		return target, exitTarget
	}
	if b.High >= stop {
		return stop, exitStop
	}
	return 0, exitNone
}

// windowEnd is the default exit time for a trade entered at entryTime.
// Pre-market trades close out at the open they entered on; regular trades
// at the 16:00 close; after-market trades at the next open they entered on.
func (s *Simulator) windowEnd(entryTime time.Time, sess domain.Session) time.Time {
	if sess == domain.SessionRegular {
		return time.Date(entryTime.Year(), entryTime.Month(), entryTime.Day(), 16, 0, 0, 0, entryTime.Location())
	}
	return entryTime
}

func (s *Simulator) computeMetrics(trades []domain.Trade, excluded int) domain.Metrics {
	m := domain.Metrics{
		TotalTrades:   len(trades),
		ExcludedCount: excluded,
	}
	for _, t := range trades {
		m.TotalPnL += t.PnL
		if t.PnL > 0 {
			m.WinningTrades++
		}
	}
	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	m.TotalReturnPct = m.TotalPnL / s.cfg.InitialCapital * 100

	span := trades[len(trades)-1].ExitTime.Sub(trades[0].EntryTime)
	days := span.Hours() / 24
	if days >= 1 {
		m.AnnualizedReturnPct = m.TotalReturnPct * 365 / days
	} else {
		// Too short to scale meaningfully.
		m.AnnualizedReturnPct = m.TotalReturnPct
	}
	return m
}
