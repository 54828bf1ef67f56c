package attribution

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"newsalpha/internal/domain"
	"newsalpha/internal/marketdata"
	"newsalpha/internal/store"
	"newsalpha/internal/util"
)

const (
	attributeAttempts = 3
	attributeBackoff  = 500 * time.Millisecond
	upsertAttempts    = 3
	upsertBackoff     = 100 * time.Millisecond
)

// TaskStore is the persistence surface the attribution task needs.
type TaskStore interface {
	store.NewsStore
	store.PriceMoveStore
}

// TaskParams selects which events a task run attributes.
type TaskParams struct {
	// Publishers limits the run to events from these publishers. Empty
	// means all publishers.
	Publishers []string
	// LookbackDays bounds how far back unattributed events are picked up.
	LookbackDays int
}

// TaskReport summarizes one task run.
type TaskReport struct {
	RunID     string
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
}

// Task attributes price moves for outstanding news events in parallel.
type Task struct {
	store      TaskStore
	engine     *Engine
	provider   marketdata.Provider
	maxWorkers int
	log        *slog.Logger
	now        func() time.Time
}

// NewTask wires a Task. The provider is wrapped with a fresh per-run bar
// cache on each Run, so repeated symbol/day lookups within one run hit the
// network at most once.
func NewTask(st TaskStore, engine *Engine, provider marketdata.Provider, maxWorkers int, log *slog.Logger) *Task {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Task{
		store:      st,
		engine:     engine,
		provider:   provider,
		maxWorkers: maxWorkers,
		log:        log,
		now:        time.Now,
	}
}

// Run attributes all unattributed (or stale) events matching params.
// Individual event failures are logged and counted, not fatal; Run returns
// an error only when listing events fails or ctx is cancelled.
func (t *Task) Run(ctx context.Context, params TaskParams) (TaskReport, error) {
	runID := uuid.NewString()
	log := t.log.With("task", "pricemove", "run_id", runID)
	report := TaskReport{RunID: runID}

	since := t.now().AddDate(0, 0, -params.LookbackDays)
	events, err := t.store.ListUnattributed(ctx, params.Publishers, since)
	if err != nil {
		return report, err
	}
	report.Total = len(events)
	if len(events) == 0 {
		log.Info("nothing to attribute")
		return report, nil
	}
	log.Info("attributing events", "count", len(events), "since", since.Format("2006-01-02"))

	// One shared cache per run: events on the same ticker/day, and every
	// event's benchmark lookup, reuse fetched bars.
	provider := marketdata.NewCachingProvider(t.provider, marketdata.NewBarCache())

	eventCh := make(chan domain.NewsEvent, len(events))
	for _, ev := range events {
		eventCh <- ev
	}
	close(eventCh)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		skipped   atomic.Int64
		failed    atomic.Int64
		runStart  = time.Now()
	)

	workers := min(t.maxWorkers, len(events))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range eventCh {
				if ctx.Err() != nil {
					return
				}
				switch t.processEvent(ctx, provider, ev, log) {
				case outcomeSucceeded:
					succeeded.Add(1)
				case outcomeSkipped:
					skipped.Add(1)
				case outcomeFailed:
					failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	report.Succeeded = int(succeeded.Load())
	report.Skipped = int(skipped.Load())
	report.Failed = int(failed.Load())

	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	log.Info("attribution run finished",
		"total", report.Total,
		"succeeded", report.Succeeded,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"elapsed", time.Since(runStart).Round(time.Second).String(),
	)
	return report, nil
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (t *Task) processEvent(ctx context.Context, provider marketdata.Provider, ev domain.NewsEvent, log *slog.Logger) outcome {
	var pm *domain.PriceMove
	err := util.Retry(ctx, attributeAttempts, attributeBackoff, marketdata.IsRetryable, func() error {
		var aerr error
		pm, aerr = t.engine.Attribute(ctx, provider, ev)
		return aerr
	})
	if err != nil {
		log.Error("attribution failed", "news_id", ev.ID, "ticker", ev.Ticker, "err", err)
		return outcomeFailed
	}
	if !pm.Complete() {
		// Already logged by the engine with the missing window.
		return outcomeSkipped
	}

	err = util.Retry(ctx, upsertAttempts, upsertBackoff,
		func(err error) bool { return errors.Is(err, store.ErrConflict) },
		func() error { return t.store.UpsertPriceMove(ctx, pm) },
	)
	if err != nil {
		log.Error("storing price move failed", "news_id", ev.ID, "ticker", ev.Ticker, "err", err)
		return outcomeFailed
	}
	return outcomeSucceeded
}
