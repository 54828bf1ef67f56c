// Package seed loads news events exported by the upstream ingestion
// pipeline into the news store. The exchange format is JSON lines, one
// event per line.
package seed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"newsalpha/internal/domain"
	"newsalpha/internal/store"
)

// eventRecord is the wire shape of one exported news event.
type eventRecord struct {
	ID                 int64    `json:"id"`
	Ticker             string   `json:"ticker"`
	Publisher          string   `json:"publisher"`
	Category           string   `json:"category"`
	PublishedAt        string   `json:"published_at"` // RFC 3339
	PredictedDirection *string  `json:"predicted_direction,omitempty"`
	PredictedMagnitude *float64 `json:"predicted_magnitude,omitempty"`
}

// Load decodes JSON lines from r and inserts the events. Events whose ID is
// already stored are skipped by the store; Load returns the number of newly
// inserted rows. A malformed line fails the whole load with its line number.
func Load(ctx context.Context, r io.Reader, st store.NewsStore, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}

	var events []domain.NewsEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec eventRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		ev, err := toEvent(rec)
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("reading events: %w", err)
	}
	if len(events) == 0 {
		log.Info("no events to seed")
		return 0, nil
	}

	inserted, err := st.InsertNewsEvents(ctx, events)
	if err != nil {
		return inserted, fmt.Errorf("storing events: %w", err)
	}
	log.Info("seeded news events", "read", len(events), "inserted", inserted)
	return inserted, nil
}

func toEvent(rec eventRecord) (domain.NewsEvent, error) {
	if rec.ID == 0 {
		return domain.NewsEvent{}, fmt.Errorf("missing id")
	}
	if rec.Ticker == "" {
		return domain.NewsEvent{}, fmt.Errorf("event %d: missing ticker", rec.ID)
	}
	publishedAt, err := time.Parse(time.RFC3339, rec.PublishedAt)
	if err != nil {
		return domain.NewsEvent{}, fmt.Errorf("event %d: published_at: %w", rec.ID, err)
	}

	ev := domain.NewsEvent{
		ID:                 rec.ID,
		Ticker:             strings.ToUpper(rec.Ticker),
		Publisher:          rec.Publisher,
		Category:           rec.Category,
		PublishedAt:        publishedAt,
		PredictedMagnitude: rec.PredictedMagnitude,
	}
	if rec.PredictedDirection != nil {
		switch d := domain.Direction(*rec.PredictedDirection); d {
		case domain.DirectionUp, domain.DirectionDown:
			ev.PredictedDirection = &d
		default:
			return domain.NewsEvent{}, fmt.Errorf("event %d: invalid predicted_direction %q", rec.ID, *rec.PredictedDirection)
		}
	}
	return ev, nil
}
