package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"newsalpha/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ NewsStore = (*SQLiteStore)(nil)
var _ PriceMoveStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS news (
    id                  INTEGER PRIMARY KEY,
    ticker              TEXT NOT NULL,
    publisher           TEXT NOT NULL,
    category            TEXT NOT NULL DEFAULT '',
    published_at        TEXT NOT NULL,
    predicted_direction TEXT,
    predicted_magnitude REAL
);

CREATE INDEX IF NOT EXISTS idx_news_publisher_published
    ON news(publisher, published_at);

-- One row per news item; re-attribution overwrites in place.
CREATE TABLE IF NOT EXISTS price_moves (
    news_id                INTEGER PRIMARY KEY,
    ticker                 TEXT NOT NULL,
    published_at           TEXT NOT NULL,
    session                TEXT NOT NULL,
    begin_price            REAL NOT NULL,
    end_price              REAL NOT NULL,
    index_begin_price      REAL NOT NULL,
    index_end_price        REAL NOT NULL,
    volume                 INTEGER,
    price_change           REAL NOT NULL,
    price_change_pct       REAL NOT NULL,
    index_price_change_pct REAL NOT NULL,
    alpha                  REAL NOT NULL,
    actual_direction       TEXT NOT NULL,
    computed_at            TEXT NOT NULL
);
`

// SQLiteStore implements NewsStore and PriceMoveStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies
// the schema, and returns a ready-to-use store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// NewsStore implementation
// ---------------------------------------------------------------------------

// InsertNewsEvents adds events, skipping IDs that already exist. It returns
// the number of rows inserted.
func (s *SQLiteStore) InsertNewsEvents(ctx context.Context, events []domain.NewsEvent) (int, error) {
	const q = `
INSERT INTO news (id, ticker, publisher, category, published_at, predicted_direction, predicted_magnitude)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`

	inserted := 0
	for _, ev := range events {
		var dir sql.NullString
		if ev.PredictedDirection != nil {
			dir = sql.NullString{String: string(*ev.PredictedDirection), Valid: true}
		}
		var mag sql.NullFloat64
		if ev.PredictedMagnitude != nil {
			mag = sql.NullFloat64{Float64: *ev.PredictedMagnitude, Valid: true}
		}

		res, err := s.db.ExecContext(ctx, q,
			ev.ID, ev.Ticker, ev.Publisher, ev.Category,
			formatTime(ev.PublishedAt), dir, mag,
		)
		if err != nil {
			return inserted, mapConflict(fmt.Errorf("inserting news %d: %w", ev.ID, err))
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// ListUnattributed returns events from the given publishers published at or
// after since that have no stored price move, or whose stored move was
// computed against a different published timestamp.
func (s *SQLiteStore) ListUnattributed(ctx context.Context, publishers []string, since time.Time) ([]domain.NewsEvent, error) {
	var sb strings.Builder
	sb.WriteString(`
SELECT n.id, n.ticker, n.publisher, n.category, n.published_at, n.predicted_direction, n.predicted_magnitude
FROM news n
LEFT JOIN price_moves pm ON pm.news_id = n.id
WHERE n.published_at >= ?
  AND (pm.news_id IS NULL OR pm.published_at != n.published_at)`)

	args := []any{formatTime(since)}
	if len(publishers) > 0 {
		sb.WriteString(" AND n.publisher IN (" + placeholders(len(publishers)) + ")")
		for _, p := range publishers {
			args = append(args, p)
		}
	}
	sb.WriteString(" ORDER BY n.published_at ASC")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing unattributed news: %w", err)
	}
	defer rows.Close()

	var events []domain.NewsEvent
	for rows.Next() {
		ev, err := scanNewsEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ---------------------------------------------------------------------------
// PriceMoveStore implementation
// ---------------------------------------------------------------------------

// UpsertPriceMove inserts the move or overwrites every field of the existing
// row for the same news ID, refreshing computed_at. Incomplete moves are
// rejected with ErrIncompleteMove.
func (s *SQLiteStore) UpsertPriceMove(ctx context.Context, pm *domain.PriceMove) error {
	if !pm.Complete() {
		return fmt.Errorf("%w: news_id %d", ErrIncompleteMove, pm.NewsID)
	}

	const q = `
INSERT INTO price_moves (
    news_id, ticker, published_at, session,
    begin_price, end_price, index_begin_price, index_end_price, volume,
    price_change, price_change_pct, index_price_change_pct, alpha,
    actual_direction, computed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(news_id) DO UPDATE SET
    ticker                 = excluded.ticker,
    published_at           = excluded.published_at,
    session                = excluded.session,
    begin_price            = excluded.begin_price,
    end_price              = excluded.end_price,
    index_begin_price      = excluded.index_begin_price,
    index_end_price        = excluded.index_end_price,
    volume                 = excluded.volume,
    price_change           = excluded.price_change,
    price_change_pct       = excluded.price_change_pct,
    index_price_change_pct = excluded.index_price_change_pct,
    alpha                  = excluded.alpha,
    actual_direction       = excluded.actual_direction,
    computed_at            = excluded.computed_at`

	var volume sql.NullInt64
	if pm.Volume != nil {
		volume = sql.NullInt64{Int64: *pm.Volume, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, q,
		pm.NewsID, pm.Ticker, formatTime(pm.PublishedAt), string(pm.Session),
		*pm.BeginPrice, *pm.EndPrice, *pm.IndexBeginPrice, *pm.IndexEndPrice, volume,
		pm.PriceChange, pm.PriceChangePct, pm.IndexPriceChangePct, pm.Alpha,
		string(pm.ActualDirection), formatTime(pm.ComputedAt),
	)
	if err != nil {
		return mapConflict(fmt.Errorf("upserting price move %d: %w", pm.NewsID, err))
	}
	return nil
}

// QueryPriceMoves returns the news × price_moves join for rows matching the
// filter, ordered by published time ascending.
func (s *SQLiteStore) QueryPriceMoves(ctx context.Context, f Filter) ([]NewsPriceMove, error) {
	var sb strings.Builder
	sb.WriteString(`
SELECT n.id, n.ticker, n.publisher, n.category, n.published_at, n.predicted_direction, n.predicted_magnitude,
       pm.session, pm.begin_price, pm.end_price, pm.index_begin_price, pm.index_end_price, pm.volume,
       pm.price_change, pm.price_change_pct, pm.index_price_change_pct, pm.alpha, pm.actual_direction, pm.computed_at
FROM news n
JOIN price_moves pm ON pm.news_id = n.id
WHERE 1=1`)

	var args []any
	if len(f.Publishers) > 0 {
		sb.WriteString(" AND n.publisher IN (" + placeholders(len(f.Publishers)) + ")")
		for _, p := range f.Publishers {
			args = append(args, p)
		}
	}
	if len(f.Categories) > 0 {
		sb.WriteString(" AND n.category IN (" + placeholders(len(f.Categories)) + ")")
		for _, c := range f.Categories {
			args = append(args, c)
		}
	}
	if f.Ticker != "" {
		sb.WriteString(" AND n.ticker = ?")
		args = append(args, f.Ticker)
	}
	if !f.Start.IsZero() {
		sb.WriteString(" AND n.published_at >= ?")
		args = append(args, formatTime(f.Start))
	}
	if !f.End.IsZero() {
		sb.WriteString(" AND n.published_at <= ?")
		args = append(args, formatTime(f.End))
	}
	sb.WriteString(" ORDER BY n.published_at ASC")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying price moves: %w", err)
	}
	defer rows.Close()

	var out []NewsPriceMove
	for rows.Next() {
		var (
			ev           domain.NewsEvent
			pubAt        string
			dir          sql.NullString
			mag          sql.NullFloat64
			sess         string
			begin, end   float64
			iBegin, iEnd float64
			volume       sql.NullInt64
			pm           domain.PriceMove
			actual       string
			computedAt   string
		)
		err := rows.Scan(
			&ev.ID, &ev.Ticker, &ev.Publisher, &ev.Category, &pubAt, &dir, &mag,
			&sess, &begin, &end, &iBegin, &iEnd, &volume,
			&pm.PriceChange, &pm.PriceChangePct, &pm.IndexPriceChangePct, &pm.Alpha, &actual, &computedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning price move row: %w", err)
		}

		ev.PublishedAt, err = parseTime(pubAt)
		if err != nil {
			return nil, err
		}
		if dir.Valid {
			d := domain.Direction(dir.String)
			ev.PredictedDirection = &d
		}
		if mag.Valid {
			m := mag.Float64
			ev.PredictedMagnitude = &m
		}

		pm.NewsID = ev.ID
		pm.Ticker = ev.Ticker
		pm.PublishedAt = ev.PublishedAt
		pm.Session = domain.Session(sess)
		pm.BeginPrice = &begin
		pm.EndPrice = &end
		pm.IndexBeginPrice = &iBegin
		pm.IndexEndPrice = &iEnd
		if volume.Valid {
			v := volume.Int64
			pm.Volume = &v
		}
		pm.ActualDirection = domain.Direction(actual)
		pm.ComputedAt, err = parseTime(computedAt)
		if err != nil {
			return nil, err
		}

		out = append(out, NewsPriceMove{Event: ev, Move: pm})
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNewsEvent(r rowScanner) (domain.NewsEvent, error) {
	var (
		ev    domain.NewsEvent
		pubAt string
		dir   sql.NullString
		mag   sql.NullFloat64
	)
	if err := r.Scan(&ev.ID, &ev.Ticker, &ev.Publisher, &ev.Category, &pubAt, &dir, &mag); err != nil {
		return domain.NewsEvent{}, fmt.Errorf("scanning news row: %w", err)
	}
	var err error
	ev.PublishedAt, err = parseTime(pubAt)
	if err != nil {
		return domain.NewsEvent{}, err
	}
	if dir.Valid {
		d := domain.Direction(dir.String)
		ev.PredictedDirection = &d
	}
	if mag.Valid {
		m := mag.Float64
		ev.PredictedMagnitude = &m
	}
	return ev, nil
}

// timeLayout pads fractional seconds to nine digits. RFC3339Nano trims
// trailing zeros, which breaks lexicographic comparison in SQL: "...00.5Z"
// would sort before "...00Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime normalizes timestamps to a fixed-width UTC string so SQL
// comparison and ordering match time order.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// mapConflict translates SQLite busy/locked failures into ErrConflict so
// callers can retry the write.
func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
