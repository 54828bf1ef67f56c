// Package store defines storage interfaces for news events, attributed
// price moves, daily-bar archives, and backtest ledgers.
package store

import (
	"context"
	"errors"
	"time"

	"newsalpha/internal/domain"
)

// ErrConflict signals a lost race between concurrent upserts for the same
// news ID. The write is safe to retry; attribution is deterministic, so
// last-writer-wins.
var ErrConflict = errors.New("store: concurrent write conflict")

// ErrIncompleteMove is returned when a caller tries to persist a PriceMove
// with unresolved prices. Incomplete attributions are never stored.
var ErrIncompleteMove = errors.New("store: price move has unresolved prices")

// Filter narrows a price move query. Zero values mean "no constraint".
type Filter struct {
	Publishers []string
	Categories []string
	Ticker     string
	Start      time.Time
	End        time.Time
}

// NewsPriceMove is one row of the news × price_moves join consumed by
// model training and backtests.
type NewsPriceMove struct {
	Event domain.NewsEvent
	Move  domain.PriceMove
}

// NewsStore persists and selects news events.
type NewsStore interface {
	// InsertNewsEvents adds events, skipping IDs that already exist.
	// It returns the number of rows inserted.
	InsertNewsEvents(ctx context.Context, events []domain.NewsEvent) (int, error)

	// ListUnattributed returns events from the given publishers published at
	// or after since that either have no stored price move, or whose stored
	// move was computed against a different published timestamp.
	ListUnattributed(ctx context.Context, publishers []string, since time.Time) ([]domain.NewsEvent, error)
}

// PriceMoveStore persists and queries attributed price moves.
type PriceMoveStore interface {
	// UpsertPriceMove inserts the move, or overwrites all fields of the
	// existing row for the same news ID. At most one row exists per news ID.
	UpsertPriceMove(ctx context.Context, pm *domain.PriceMove) error

	// QueryPriceMoves returns the news × price_moves join for rows matching
	// the filter, ordered by published time ascending.
	QueryPriceMoves(ctx context.Context, f Filter) ([]NewsPriceMove, error)
}

// LedgerWriter persists the trade ledger of one backtest run.
type LedgerWriter interface {
	WriteLedger(result *domain.BacktestResult) error
}
