// Package session classifies event timestamps into market sessions and
// computes theoretical order-entry times. Hours model the US equity session:
// 09:30-16:00 exchange-local time.
package session

import (
	"time"

	"newsalpha/internal/calendar"
	"newsalpha/internal/domain"
)

const (
	openHour   = 9
	openMinute = 30
	closeHour  = 16
	entryGrid  = 5 * time.Minute
)

// Classify maps a timestamp to a market session in the exchange zone.
// Boundaries are half-open: 09:30:00 is Regular, 16:00:00 is AfterMarket.
func Classify(t time.Time, loc *time.Location) domain.Session {
	local := t.In(loc)
	sec := local.Hour()*3600 + local.Minute()*60 + local.Second()

	switch {
	case sec < openHour*3600+openMinute*60:
		return domain.SessionPreMarket
	case sec < closeHour*3600:
		return domain.SessionRegular
	default:
		return domain.SessionAfterMarket
	}
}

// EntryTime computes the theoretical order-entry time for an event published
// at t and classified into session s:
//
//   - Regular: t rounded up to the next 5-minute mark, capped at the 16:00
//     close; publications before the open enter at the open.
//   - PreMarket: 09:30 of the same day.
//   - AfterMarket: 09:30 of the next trading day.
//
// The result is in the calendar's exchange zone.
func EntryTime(t time.Time, s domain.Session, cal *calendar.Calendar) (time.Time, error) {
	loc := cal.Location()
	local := t.In(loc)

	switch s {
	case domain.SessionRegular:
		return RegularEntryTime(t, loc), nil

	case domain.SessionPreMarket:
		return openAt(local), nil

	case domain.SessionAfterMarket:
		next, err := cal.NextTradingDay(t)
		if err != nil {
			return time.Time{}, err
		}
		return openAt(next), nil

	default:
		return RegularEntryTime(t, loc), nil
	}
}

// RegularEntryTime rounds t up to the next 5-minute mark within the regular
// session, capped at the close. Timestamps already on a mark advance to the
// next one; timestamps before the open enter at the open.
func RegularEntryTime(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	open := openAt(local)
	if local.Before(open) {
		return open
	}

	next := local.Truncate(entryGrid).Add(entryGrid)
	sessionClose := time.Date(local.Year(), local.Month(), local.Day(), closeHour, 0, 0, 0, loc)
	if next.After(sessionClose) {
		return sessionClose
	}
	return next
}

func openAt(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), openHour, openMinute, 0, 0, day.Location())
}
