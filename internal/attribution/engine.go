// Package attribution resolves begin/end market prices for news events and
// derives index-relative performance metrics. The batch task in this
// package attributes outstanding events with bounded worker parallelism.
package attribution

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"newsalpha/internal/calendar"
	"newsalpha/internal/domain"
	"newsalpha/internal/marketdata"
	"newsalpha/internal/session"
)

// Engine attributes price moves to news events. It is stateless across
// events; the provider passed to Attribute carries any per-run caching.
type Engine struct {
	cal       *calendar.Calendar
	benchmark string
	log       *slog.Logger
	now       func() time.Time
}

// NewEngine creates an Engine using the given trading calendar and
// benchmark index symbol.
func NewEngine(cal *calendar.Calendar, benchmark string, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cal:       cal,
		benchmark: benchmark,
		log:       log,
		now:       time.Now,
	}
}

// Attribute resolves begin/end prices for the event's instrument and the
// benchmark, plus derived metrics. Missing bars yield an incomplete move
// with nil prices and a nil error; transient provider failures and calendar
// failures return a nil move and an error.
func (e *Engine) Attribute(ctx context.Context, provider marketdata.Provider, ev domain.NewsEvent) (*domain.PriceMove, error) {
	loc := e.cal.Location()
	local := ev.PublishedAt.In(loc)
	sess := session.Classify(ev.PublishedAt, loc)

	pm := &domain.PriceMove{
		NewsID:      ev.ID,
		Ticker:      ev.Ticker,
		PublishedAt: ev.PublishedAt,
		Session:     sess,
		ComputedAt:  e.now().UTC(),
	}

	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	prev, err := e.cal.PreviousTradingDay(local)
	if err != nil {
		return nil, err
	}
	next, err := e.cal.NextTradingDay(local)
	if err != nil {
		return nil, err
	}

	window := priceWindow{
		session:   sess,
		published: local,
		prev:      prev,
		today:     today,
		next:      next,
	}

	begin, end, volume, err := e.resolve(ctx, provider, ev.Ticker, window)
	if err != nil {
		return nil, err
	}
	idxBegin, idxEnd, _, err := e.resolve(ctx, provider, e.benchmark, window)
	if err != nil {
		return nil, err
	}

	pm.BeginPrice = begin
	pm.EndPrice = end
	pm.IndexBeginPrice = idxBegin
	pm.IndexEndPrice = idxEnd
	pm.Volume = volume

	if !pm.Complete() {
		e.log.Warn("incomplete attribution",
			"news_id", ev.ID, "ticker", ev.Ticker, "session", sess,
			"date", today.Format("2006-01-02"))
		return pm, nil
	}

	derive(pm)
	return pm, nil
}

// priceWindow fixes the trading days and timestamps one attribution spans.
type priceWindow struct {
	session   domain.Session
	published time.Time // exchange-local
	prev      time.Time // previous trading day, local midnight
	today     time.Time // publication day, local midnight
	next      time.Time // next trading day, local midnight
}

// resolve produces begin/end prices for one symbol over the window,
// preferring intraday bars and falling back to daily bars. The returned
// volume is the symbol's daily volume on the publication day.
func (e *Engine) resolve(ctx context.Context, provider marketdata.Provider, symbol string, w priceWindow) (begin, end *float64, volume *int64, err error) {
	daily, err := provider.FetchDailyBars(ctx, symbol, w.prev, w.next.AddDate(0, 0, 1))
	if err != nil {
		return nil, nil, nil, err
	}

	loc := w.today.Location()
	byDate := make(map[string]domain.PriceBar, len(daily))
	for _, b := range daily {
		byDate[b.Timestamp.In(loc).Format("2006-01-02")] = b
	}
	prevBar, prevOK := byDate[w.prev.Format("2006-01-02")]
	todayBar, todayOK := byDate[w.today.Format("2006-01-02")]
	nextBar, nextOK := byDate[w.next.Format("2006-01-02")]

	switch w.session {
	case domain.SessionPreMarket:
		// Prior close -> today's open.
		if prevOK {
			begin = ptr(prevBar.Close)
		}
		end, err = e.intradayOpenAt(ctx, provider, symbol, w.today, sessionOpen(w.today))
		if err != nil {
			return nil, nil, nil, err
		}
		if end == nil && todayOK {
			end = ptr(todayBar.Open)
		}

	case domain.SessionRegular:
		// Entry-time open -> session close.
		entry := session.RegularEntryTime(w.published, loc)
		begin, err = e.intradayOpenAt(ctx, provider, symbol, w.today, entry)
		if err != nil {
			return nil, nil, nil, err
		}
		if begin == nil && todayOK {
			begin = ptr(todayBar.Open)
		}
		end, err = e.intradayCloseAt(ctx, provider, symbol, w.today, sessionClose(w.today))
		if err != nil {
			return nil, nil, nil, err
		}
		if end == nil && todayOK {
			end = ptr(todayBar.Close)
		}

	case domain.SessionAfterMarket:
		// Today's close -> next trading day's open.
		if todayOK {
			begin = ptr(todayBar.Close)
		}
		end, err = e.intradayOpenAt(ctx, provider, symbol, w.next, sessionOpen(w.next))
		if err != nil {
			return nil, nil, nil, err
		}
		if end == nil && nextOK {
			end = ptr(nextBar.Open)
		}
	}

	if todayOK {
		volume = ptr(todayBar.Volume)
	}
	return begin, end, volume, nil
}

// intradayOpenAt returns the open of the first 1-minute bar at or after
// target on the given day. A nil result means no usable intraday data; the
// caller falls back to daily bars. Transient provider failures propagate.
func (e *Engine) intradayOpenAt(ctx context.Context, provider marketdata.Provider, symbol string, day, target time.Time) (*float64, error) {
	bars, err := e.intradayBars(ctx, provider, symbol, day)
	if err != nil || bars == nil {
		return nil, err
	}
	for _, b := range bars {
		if !b.Timestamp.Before(target) {
			return ptr(b.Open), nil
		}
	}
	return nil, nil
}

// intradayCloseAt returns the close of the last 1-minute bar strictly
// before target on the given day.
func (e *Engine) intradayCloseAt(ctx context.Context, provider marketdata.Provider, symbol string, day, target time.Time) (*float64, error) {
	bars, err := e.intradayBars(ctx, provider, symbol, day)
	if err != nil || bars == nil {
		return nil, err
	}
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Timestamp.Before(target) {
			return ptr(bars[i].Close), nil
		}
	}
	return nil, nil
}

func (e *Engine) intradayBars(ctx context.Context, provider marketdata.Provider, symbol string, day time.Time) ([]domain.PriceBar, error) {
	bars, err := provider.FetchIntradayBars(ctx, symbol, day)
	if err != nil {
		if errors.Is(err, marketdata.ErrDataUnavailable) {
			// Outside the intraday window; daily bars will serve.
			return nil, nil
		}
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return bars, nil
}

// derive fills the computed fields of a complete price move.
func derive(pm *domain.PriceMove) {
	begin := *pm.BeginPrice
	end := *pm.EndPrice
	idxBegin := *pm.IndexBeginPrice
	idxEnd := *pm.IndexEndPrice

	pm.PriceChange = end - begin
	pm.PriceChangePct = pm.PriceChange / begin * 100
	pm.IndexPriceChangePct = (idxEnd - idxBegin) / idxBegin * 100
	pm.Alpha = pm.PriceChangePct - pm.IndexPriceChangePct

	// 0% counts as UP.
	if pm.PriceChangePct >= 0 {
		pm.ActualDirection = domain.DirectionUp
	} else {
		pm.ActualDirection = domain.DirectionDown
	}
}

func sessionOpen(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 9, 30, 0, 0, day.Location())
}

func sessionClose(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 16, 0, 0, 0, day.Location())
}

func ptr[T any](v T) *T { return &v }
