// Command pricemove-task attributes market price moves to outstanding news
// events and stores the results. Intended to run as a scheduled batch job
// after each trading day.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"newsalpha/internal/attribution"
	"newsalpha/internal/calendar"
	"newsalpha/internal/config"
	"newsalpha/internal/marketdata"
	"newsalpha/internal/store"
)

func main() {
	lookbackDays := flag.Int("lookback-days", 30, "how far back to pick up unattributed events")
	publishersFlag := flag.String("publishers", "", "comma-separated publisher filter (default: config)")
	flag.Parse()

	cfgPath := "config/newsalpha.yaml"
	if p := os.Getenv("NEWSALPHA_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/pricemove-task-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	loc, err := time.LoadLocation(cfg.Attribution.Exchange)
	if err != nil {
		log.Fatalf("invalid exchange timezone %q: %v", cfg.Attribution.Exchange, err)
	}

	tradingClient := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.BaseURL,
	})
	now := time.Now().In(loc)
	cal, err := calendar.Load(tradingClient, loc,
		now.AddDate(0, 0, -(*lookbackDays+10)),
		now.AddDate(0, 0, 10),
	)
	if err != nil {
		log.Fatalf("failed to load trading calendar: %v", err)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	archive := store.NewParquetStore(cfg.Storage.DataDir)
	provider := marketdata.NewArchiveProvider(
		marketdata.NewAlpacaProvider(
			cfg.Alpaca.APIKey,
			cfg.Alpaca.APISecret,
			cfg.Alpaca.DataURL,
			cfg.Attribution.RateLimitPerMin,
			cfg.Attribution.IntradayLookbackDays,
		),
		archive,
		logger,
	)

	engine := attribution.NewEngine(cal, cfg.Attribution.Benchmark, logger)
	task := attribution.NewTask(st, engine, provider, cfg.Attribution.MaxWorkers, logger)

	publishers := cfg.Attribution.Publishers
	if *publishersFlag != "" {
		publishers = splitList(*publishersFlag)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting pricemove-task",
		"logFile", logFileName,
		"lookbackDays", *lookbackDays,
		"publishers", publishers,
	)
	report, err := task.Run(ctx, attribution.TaskParams{
		Publishers:   publishers,
		LookbackDays: *lookbackDays,
	})
	if err != nil {
		log.Fatalf("task error: %v", err)
	}
	if report.Failed > 0 {
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
