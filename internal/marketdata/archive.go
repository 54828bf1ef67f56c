package marketdata

import (
	"context"
	"log/slog"
	"time"

	"newsalpha/internal/domain"
	"newsalpha/internal/store"
)

// Compile-time interface check.
var _ Provider = (*ArchiveProvider)(nil)

// ArchiveProvider writes every successful daily-bar response through to a
// Parquet archive and falls back to the archive when the upstream provider
// fails. Intraday bars pass through untouched; the archive layout is daily.
type ArchiveProvider struct {
	inner   Provider
	archive *store.ParquetStore
	log     *slog.Logger
}

// NewArchiveProvider wraps inner with the given bar archive.
func NewArchiveProvider(inner Provider, archive *store.ParquetStore, log *slog.Logger) *ArchiveProvider {
	if log == nil {
		log = slog.Default()
	}
	return &ArchiveProvider{inner: inner, archive: archive, log: log}
}

// FetchDailyBars fetches from the upstream provider, archiving the result.
// On a transient upstream failure it serves previously archived bars for
// the range when any exist; otherwise the upstream error stands.
func (p *ArchiveProvider) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	bars, err := p.inner.FetchDailyBars(ctx, symbol, start, end)
	if err == nil {
		if werr := p.archive.WriteDailyBars(bars); werr != nil {
			p.log.Warn("archiving daily bars failed", "symbol", symbol, "err", werr)
		}
		return bars, nil
	}

	if !IsRetryable(err) {
		return nil, err
	}

	archived, aerr := p.archive.ReadDailyBars(symbol, start, end)
	if aerr != nil || len(archived) == 0 {
		return nil, err
	}
	p.log.Warn("serving daily bars from archive after provider failure",
		"symbol", symbol, "bars", len(archived), "err", err)
	return archived, nil
}

// FetchIntradayBars delegates to the upstream provider.
func (p *ArchiveProvider) FetchIntradayBars(ctx context.Context, symbol string, day time.Time) ([]domain.PriceBar, error) {
	return p.inner.FetchIntradayBars(ctx, symbol, day)
}
