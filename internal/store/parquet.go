package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"newsalpha/internal/domain"
)

// Compile-time interface check.
var _ LedgerWriter = (*ParquetStore)(nil)

// ParquetStore archives daily bars and backtest ledgers as Parquet files
// on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for archived daily bars.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// LedgerRecord is the Parquet schema for one simulated trade.
type LedgerRecord struct {
	RunID        string  `parquet:"run_id"`
	NewsID       int64   `parquet:"news_id"`
	Ticker       string  `parquet:"ticker"`
	Direction    string  `parquet:"direction"`
	EntryTime    int64   `parquet:"entry_time,timestamp(millisecond)"`
	ExitTime     int64   `parquet:"exit_time,timestamp(millisecond)"`
	Shares       int64   `parquet:"shares"`
	EntryPrice   float64 `parquet:"entry_price"`
	ExitPrice    float64 `parquet:"exit_price"`
	TargetPrice  float64 `parquet:"target_price"`
	StopPrice    float64 `parquet:"stop_price"`
	HitTarget    bool    `parquet:"hit_target"`
	HitStop      bool    `parquet:"hit_stop"`
	PnL          float64 `parquet:"pnl"`
	PnLPct       float64 `parquet:"pnl_pct"`
	CapitalAfter float64 `parquet:"capital_after"`
}

// ---------------------------------------------------------------------------
// Daily bar archive
// ---------------------------------------------------------------------------

// WriteDailyBars archives bars grouped by symbol and year, merged with any
// previously archived bars for the same file.
func (s *ParquetStore) WriteDailyBars(bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, year: b.Timestamp.Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:    b.Symbol,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, k.year)

		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadDailyBars returns archived bars for the symbol with timestamps in
// [start, end]. Missing files read as no data.
func (s *ParquetStore) ReadDailyBars(symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	var bars []domain.PriceBar
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readParquetFile[BarRecord](s.barPath(symbol, year))
		if err != nil {
			// No archive for this year.
			continue
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp)
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.PriceBar{
				Symbol:    r.Symbol,
				Timestamp: ts,
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    r.Volume,
			})
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// ---------------------------------------------------------------------------
// Backtest ledger
// ---------------------------------------------------------------------------

// WriteLedger writes the full trade ledger of one backtest run to
// <DataDir>/backtests/<run_id>.parquet.
func (s *ParquetStore) WriteLedger(result *domain.BacktestResult) error {
	if result == nil || len(result.Trades) == 0 {
		return nil
	}

	records := make([]LedgerRecord, 0, len(result.Trades))
	for _, t := range result.Trades {
		records = append(records, LedgerRecord{
			RunID:        result.RunID,
			NewsID:       t.NewsID,
			Ticker:       t.Ticker,
			Direction:    string(t.Direction),
			EntryTime:    t.EntryTime.UnixMilli(),
			ExitTime:     t.ExitTime.UnixMilli(),
			Shares:       t.Shares,
			EntryPrice:   t.EntryPrice,
			ExitPrice:    t.ExitPrice,
			TargetPrice:  t.TargetPrice,
			StopPrice:    t.StopPrice,
			HitTarget:    t.HitTarget,
			HitStop:      t.HitStop,
			PnL:          t.PnL,
			PnLPct:       t.PnLPct,
			CapitalAfter: t.CapitalAfter,
		})
	}

	path := s.ledgerPath(result.RunID)
	if err := writeParquetFile(path, records); err != nil {
		return fmt.Errorf("writing ledger %s: %w", result.RunID, err)
	}
	return nil
}

// ReadLedger reads back the trade ledger of a previous run.
func (s *ParquetStore) ReadLedger(runID string) ([]LedgerRecord, error) {
	return readParquetFile[LedgerRecord](s.ledgerPath(runID))
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the archive path for a daily-bar Parquet file.
// Layout: <DataDir>/us/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, string(domain.MarketUS), "daily",
		strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// ledgerPath returns the path for a backtest ledger Parquet file.
// Layout: <DataDir>/backtests/<RUN_ID>.parquet
func (s *ParquetStore) ledgerPath(runID string) string {
	return filepath.Join(s.DataDir, "backtests", runID+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp),
// preferring new records over existing ones. Results are sorted by
// timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
