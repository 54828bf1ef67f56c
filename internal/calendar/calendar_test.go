package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading ET timezone: %v", err)
	}
	return loc
}

// weekdaysOf returns the weekdays of June 2024 except June 19 (Juneteenth),
// matching the real NYSE calendar for that month.
func june2024(t *testing.T, loc *time.Location) []time.Time {
	t.Helper()
	var days []time.Time
	for d := 1; d <= 30; d++ {
		day := time.Date(2024, 6, d, 0, 0, 0, 0, loc)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		if d == 19 {
			continue
		}
		days = append(days, day)
	}
	return days
}

func TestPreviousNextTradingDay(t *testing.T) {
	loc := mustLoc(t)
	cal := NewFromDays(loc, june2024(t, loc))

	cases := []struct {
		name     string
		from     time.Time
		wantPrev string
		wantNext string
	}{
		{
			name:     "midweek",
			from:     time.Date(2024, 6, 12, 14, 0, 0, 0, loc),
			wantPrev: "2024-06-11",
			wantNext: "2024-06-13",
		},
		{
			name:     "saturday",
			from:     time.Date(2024, 6, 15, 9, 0, 0, 0, loc),
			wantPrev: "2024-06-14",
			wantNext: "2024-06-17",
		},
		{
			name:     "day before holiday",
			from:     time.Date(2024, 6, 18, 10, 0, 0, 0, loc),
			wantPrev: "2024-06-17",
			wantNext: "2024-06-20",
		},
		{
			name:     "holiday itself",
			from:     time.Date(2024, 6, 19, 10, 0, 0, 0, loc),
			wantPrev: "2024-06-18",
			wantNext: "2024-06-20",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prev, err := cal.PreviousTradingDay(tc.from)
			if err != nil {
				t.Fatalf("PreviousTradingDay: %v", err)
			}
			if got := prev.Format("2006-01-02"); got != tc.wantPrev {
				t.Errorf("PreviousTradingDay = %s, want %s", got, tc.wantPrev)
			}

			next, err := cal.NextTradingDay(tc.from)
			if err != nil {
				t.Fatalf("NextTradingDay: %v", err)
			}
			if got := next.Format("2006-01-02"); got != tc.wantNext {
				t.Errorf("NextTradingDay = %s, want %s", got, tc.wantNext)
			}
		})
	}
}

func TestIsTradingDay(t *testing.T) {
	loc := mustLoc(t)
	cal := NewFromDays(loc, june2024(t, loc))

	if !cal.IsTradingDay(time.Date(2024, 6, 12, 23, 0, 0, 0, loc)) {
		t.Error("2024-06-12 should be a trading day")
	}
	if cal.IsTradingDay(time.Date(2024, 6, 15, 10, 0, 0, 0, loc)) {
		t.Error("2024-06-15 (Saturday) should not be a trading day")
	}
	if cal.IsTradingDay(time.Date(2024, 6, 19, 10, 0, 0, 0, loc)) {
		t.Error("2024-06-19 (Juneteenth) should not be a trading day")
	}
}

func TestOutOfRangeIsUnavailable(t *testing.T) {
	loc := mustLoc(t)
	cal := NewFromDays(loc, june2024(t, loc))

	if _, err := cal.PreviousTradingDay(time.Date(2024, 7, 10, 0, 0, 0, 0, loc)); !errors.Is(err, ErrUnavailable) {
		t.Errorf("PreviousTradingDay beyond range: err = %v, want ErrUnavailable", err)
	}
	if _, err := cal.NextTradingDay(time.Date(2024, 6, 28, 0, 0, 0, 0, loc)); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NextTradingDay at range end: err = %v, want ErrUnavailable", err)
	}
	if _, err := cal.PreviousTradingDay(time.Date(2024, 6, 3, 0, 0, 0, 0, loc)); !errors.Is(err, ErrUnavailable) {
		t.Errorf("PreviousTradingDay at range start: err = %v, want ErrUnavailable", err)
	}
	if _, err := cal.NextTradingDay(time.Date(2024, 5, 20, 0, 0, 0, 0, loc)); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NextTradingDay before range: err = %v, want ErrUnavailable", err)
	}
}

type fakeCalendarAPI struct {
	days []alpaca.CalendarDay
	err  error
}

func (f *fakeCalendarAPI) GetCalendar(_ alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error) {
	return f.days, f.err
}

func TestLoad(t *testing.T) {
	loc := mustLoc(t)
	api := &fakeCalendarAPI{days: []alpaca.CalendarDay{
		{Date: "2024-06-17"},
		{Date: "2024-06-18"},
		{Date: "2024-06-20"},
	}}

	cal, err := Load(api, loc, time.Date(2024, 6, 17, 0, 0, 0, 0, loc), time.Date(2024, 6, 20, 0, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	next, err := cal.NextTradingDay(time.Date(2024, 6, 18, 12, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("NextTradingDay: %v", err)
	}
	if got := next.Format("2006-01-02"); got != "2024-06-20" {
		t.Errorf("NextTradingDay = %s, want 2024-06-20", got)
	}
}

func TestLoadFailureIsUnavailable(t *testing.T) {
	loc := mustLoc(t)

	_, err := Load(&fakeCalendarAPI{err: errors.New("boom")}, loc, time.Now().AddDate(0, 0, -7), time.Now())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Load with API error: err = %v, want ErrUnavailable", err)
	}

	_, err = Load(&fakeCalendarAPI{}, loc, time.Now().AddDate(0, 0, -7), time.Now())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Load with empty calendar: err = %v, want ErrUnavailable", err)
	}
}

func TestLoadRejectsMalformedDay(t *testing.T) {
	loc := mustLoc(t)
	api := &fakeCalendarAPI{days: []alpaca.CalendarDay{
		{Date: "2024-06-17"},
		{Date: "06/18/2024"},
		{Date: "2024-06-20"},
	}}

	_, err := Load(api, loc, time.Date(2024, 6, 17, 0, 0, 0, 0, loc), time.Date(2024, 6, 20, 0, 0, 0, 0, loc))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Load with malformed day: err = %v, want ErrUnavailable", err)
	}
}
