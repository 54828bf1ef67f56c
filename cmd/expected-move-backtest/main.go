// Command expected-move-backtest replays stored price moves as an
// expected-move trading strategy and reports the resulting metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"newsalpha/internal/backtest"
	"newsalpha/internal/calendar"
	"newsalpha/internal/config"
	"newsalpha/internal/domain"
	"newsalpha/internal/marketdata"
	"newsalpha/internal/store"
	"newsalpha/internal/util"
)

func main() {
	startFlag := flag.String("start", "", "start date YYYY-MM-DD (required)")
	endFlag := flag.String("end", "", "end date YYYY-MM-DD (required)")
	publishersFlag := flag.String("publishers", "", "comma-separated publisher filter")
	categoriesFlag := flag.String("categories", "", "comma-separated category filter")
	tickerFlag := flag.String("ticker", "", "restrict to one ticker")
	capitalFlag := flag.Float64("capital", 0, "initial capital (default: config)")
	positionFlag := flag.Float64("position-size", 0, "position size fraction (default: config)")
	takeProfitFlag := flag.Float64("take-profit", 0, "take profit fraction (default: config)")
	stopLossFlag := flag.Float64("stop-loss", 0, "stop loss fraction (default: config)")
	intradayFlag := flag.Bool("intraday-exits", false, "scan 1-minute bars for target/stop exits")
	exportFlag := flag.Bool("export-ledger", false, "write the trade ledger to the data dir")
	flag.Parse()

	if *startFlag == "" || *endFlag == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfgPath := "config/newsalpha.yaml"
	if p := os.Getenv("NEWSALPHA_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	loc, err := time.LoadLocation(cfg.Attribution.Exchange)
	if err != nil {
		log.Fatalf("invalid exchange timezone %q: %v", cfg.Attribution.Exchange, err)
	}
	start, err := time.ParseInLocation("2006-01-02", *startFlag, loc)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	end, err := time.ParseInLocation("2006-01-02", *endFlag, loc)
	if err != nil {
		log.Fatalf("invalid -end: %v", err)
	}
	end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)

	tradingClient := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.BaseURL,
	})
	cal, err := calendar.Load(tradingClient, loc, start.AddDate(0, 0, -10), end.AddDate(0, 0, 10))
	if err != nil {
		log.Fatalf("failed to load trading calendar: %v", err)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	records, err := st.QueryPriceMoves(ctx, store.Filter{
		Publishers: splitList(*publishersFlag),
		Categories: splitList(*categoriesFlag),
		Ticker:     *tickerFlag,
		Start:      start,
		End:        end,
	})
	if err != nil {
		log.Fatalf("failed to query price moves: %v", err)
	}

	simCfg := backtest.Config{
		InitialCapital:       cfg.Backtest.InitialCapital,
		PositionSizeFraction: cfg.Backtest.PositionSizeFraction,
		TakeProfit:           cfg.Backtest.TakeProfit,
		StopLoss:             cfg.Backtest.StopLoss,
	}
	if *capitalFlag > 0 {
		simCfg.InitialCapital = *capitalFlag
	}
	if *positionFlag > 0 {
		simCfg.PositionSizeFraction = *positionFlag
	}
	if *takeProfitFlag > 0 {
		simCfg.TakeProfit = *takeProfitFlag
	}
	if *stopLossFlag > 0 {
		simCfg.StopLoss = *stopLossFlag
	}

	var scanner marketdata.Provider
	if *intradayFlag {
		scanner = marketdata.NewCachingProvider(
			marketdata.NewAlpacaProvider(
				cfg.Alpaca.APIKey,
				cfg.Alpaca.APISecret,
				cfg.Alpaca.DataURL,
				cfg.Attribution.RateLimitPerMin,
				cfg.Attribution.IntradayLookbackDays,
			),
			marketdata.NewBarCache(),
		)
	}
	var ledger store.LedgerWriter
	if *exportFlag {
		ledger = store.NewParquetStore(cfg.Storage.DataDir)
	}

	sim := backtest.NewSimulator(simCfg, cal, scanner, ledger, logger)
	result, err := sim.Run(ctx, records)
	if err != nil {
		log.Fatalf("backtest error: %v", err)
	}

	printResult(result, simCfg)
}

func printResult(result *domain.BacktestResult, cfg backtest.Config) {
	m := result.Metrics
	fmt.Printf("run             %s\n", result.RunID)
	fmt.Printf("trades          %d (%d excluded)\n", m.TotalTrades, m.ExcludedCount)
	fmt.Printf("win rate        %.1f%%\n", m.WinRate*100)
	fmt.Printf("total pnl       %.2f\n", m.TotalPnL)
	fmt.Printf("total return    %.2f%%\n", m.TotalReturnPct)
	fmt.Printf("annualized      %.2f%%\n", m.AnnualizedReturnPct)
	fmt.Printf("final capital   %.2f\n", cfg.InitialCapital+m.TotalPnL)
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
