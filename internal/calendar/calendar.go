// Package calendar resolves valid trading days for an exchange from the
// Alpaca trading calendar API, excluding weekends and holidays.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// ErrUnavailable is returned when the trading calendar for a market cannot
// be resolved, or a query falls outside the loaded range. Callers must not
// fall back to plain weekday arithmetic.
var ErrUnavailable = errors.New("trading calendar unavailable")

// AlpacaAPI is the subset of the Alpaca trading client used to load the
// calendar. *alpaca.Client satisfies it.
type AlpacaAPI interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// Calendar holds the set of trading days for one exchange, together with
// the exchange's local timezone. Days are stored as midnights in that zone.
type Calendar struct {
	loc  *time.Location
	days []time.Time // ascending, unique
}

// Load fetches trading days in [start, end] from the Alpaca calendar API.
func Load(client AlpacaAPI, loc *time.Location, start, end time.Time) (*Calendar, error) {
	calDays, err := client.GetCalendar(alpaca.GetCalendarRequest{
		Start: start,
		End:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: GetCalendar: %v", ErrUnavailable, err)
	}
	if len(calDays) == 0 {
		return nil, fmt.Errorf("%w: no trading days in [%s, %s]",
			ErrUnavailable, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	days := make([]time.Time, 0, len(calDays))
	for _, cd := range calDays {
		d, err := time.ParseInLocation("2006-01-02", cd.Date, loc)
		if err != nil {
			// A gap in the calendar would corrupt session boundaries
			// downstream, so a bad day fails the whole load.
			return nil, fmt.Errorf("%w: malformed calendar day %q: %v", ErrUnavailable, cd.Date, err)
		}
		days = append(days, d)
	}
	return NewFromDays(loc, days), nil
}

// NewFromDays builds a Calendar from an explicit list of trading days.
// Intended for tests and fixed fixtures; days may be unsorted.
func NewFromDays(loc *time.Location, days []time.Time) *Calendar {
	normalized := make([]time.Time, 0, len(days))
	seen := make(map[string]struct{}, len(days))
	for _, d := range days {
		nd := midnight(d.In(loc))
		key := nd.Format("2006-01-02")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, nd)
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].Before(normalized[j]) })
	return &Calendar{loc: loc, days: normalized}
}

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// IsTradingDay reports whether the date of t (in the exchange zone) is a
// trading day. Dates outside the loaded range report false.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	nd := midnight(t.In(c.loc))
	i := c.search(nd)
	return i < len(c.days) && c.days[i].Equal(nd)
}

// PreviousTradingDay returns the latest trading day strictly before the
// date of t. It fails with ErrUnavailable when the answer cannot be
// determined from the loaded range.
func (c *Calendar) PreviousTradingDay(t time.Time) (time.Time, error) {
	nd := midnight(t.In(c.loc))
	if len(c.days) == 0 || nd.After(c.days[len(c.days)-1]) {
		return time.Time{}, fmt.Errorf("%w: %s is beyond the loaded range",
			ErrUnavailable, nd.Format("2006-01-02"))
	}
	i := c.search(nd)
	if i == 0 {
		return time.Time{}, fmt.Errorf("%w: no trading day before %s in the loaded range",
			ErrUnavailable, nd.Format("2006-01-02"))
	}
	return c.days[i-1], nil
}

// NextTradingDay returns the earliest trading day strictly after the date
// of t. It fails with ErrUnavailable when the answer cannot be determined
// from the loaded range.
func (c *Calendar) NextTradingDay(t time.Time) (time.Time, error) {
	nd := midnight(t.In(c.loc))
	if len(c.days) == 0 || nd.Before(c.days[0]) {
		return time.Time{}, fmt.Errorf("%w: %s is before the loaded range",
			ErrUnavailable, nd.Format("2006-01-02"))
	}
	i := c.search(nd.AddDate(0, 0, 1))
	if i == len(c.days) {
		return time.Time{}, fmt.Errorf("%w: no trading day after %s in the loaded range",
			ErrUnavailable, nd.Format("2006-01-02"))
	}
	return c.days[i], nil
}

// search returns the index of the first trading day >= nd.
func (c *Calendar) search(nd time.Time) int {
	return sort.Search(len(c.days), func(i int) bool {
		return !c.days[i].Before(nd)
	})
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
