// Command pricemove-query prints stored price move attributions for ad-hoc
// inspection, as an aligned table or CSV.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"newsalpha/internal/config"
	"newsalpha/internal/store"
)

func main() {
	tickerFlag := flag.String("ticker", "", "restrict to one ticker")
	publishersFlag := flag.String("publishers", "", "comma-separated publisher filter")
	categoriesFlag := flag.String("categories", "", "comma-separated category filter")
	startFlag := flag.String("start", "", "start date YYYY-MM-DD")
	endFlag := flag.String("end", "", "end date YYYY-MM-DD")
	formatFlag := flag.String("format", "table", "output format: table or csv")
	flag.Parse()

	cfgPath := "config/newsalpha.yaml"
	if p := os.Getenv("NEWSALPHA_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Attribution.Exchange)
	if err != nil {
		log.Fatalf("invalid exchange timezone %q: %v", cfg.Attribution.Exchange, err)
	}

	filter := store.Filter{
		Publishers: splitList(*publishersFlag),
		Categories: splitList(*categoriesFlag),
		Ticker:     *tickerFlag,
	}
	if *startFlag != "" {
		filter.Start, err = time.ParseInLocation("2006-01-02", *startFlag, loc)
		if err != nil {
			log.Fatalf("invalid -start: %v", err)
		}
	}
	if *endFlag != "" {
		end, err := time.ParseInLocation("2006-01-02", *endFlag, loc)
		if err != nil {
			log.Fatalf("invalid -end: %v", err)
		}
		filter.End = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	moves, err := st.QueryPriceMoves(ctx, filter)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}

	switch *formatFlag {
	case "table":
		printTable(moves, loc)
	case "csv":
		if err := printCSV(moves, loc); err != nil {
			log.Fatalf("writing csv: %v", err)
		}
	default:
		log.Fatalf("unknown format %q", *formatFlag)
	}
}

func printTable(moves []store.NewsPriceMove, loc *time.Location) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NEWS_ID\tTICKER\tPUBLISHED\tSESSION\tBEGIN\tEND\tPCT\tIDX_PCT\tALPHA\tDIR")
	for _, m := range moves {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%.2f\t%+.2f\t%+.2f\t%+.2f\t%s\n",
			m.Event.ID,
			m.Event.Ticker,
			m.Event.PublishedAt.In(loc).Format("2006-01-02 15:04"),
			m.Move.Session,
			*m.Move.BeginPrice,
			*m.Move.EndPrice,
			m.Move.PriceChangePct,
			m.Move.IndexPriceChangePct,
			m.Move.Alpha,
			m.Move.ActualDirection,
		)
	}
	w.Flush()
	printSummary(moves)
}

func printSummary(moves []store.NewsPriceMove) {
	fmt.Printf("\n%d rows\n", len(moves))
	if len(moves) == 0 {
		return
	}

	var sumPct, sumAlpha float64
	predicted, hits := 0, 0
	for _, m := range moves {
		sumPct += m.Move.PriceChangePct
		sumAlpha += m.Move.Alpha
		if m.Event.PredictedDirection == nil {
			continue
		}
		predicted++
		if *m.Event.PredictedDirection == m.Move.ActualDirection {
			hits++
		}
	}
	n := float64(len(moves))
	fmt.Printf("mean pct %+.2f  mean alpha %+.2f\n", sumPct/n, sumAlpha/n)
	if predicted > 0 {
		fmt.Printf("direction hit rate %d/%d (%.1f%%)\n",
			hits, predicted, float64(hits)/float64(predicted)*100)
	}
}

func printCSV(moves []store.NewsPriceMove, loc *time.Location) error {
	w := csv.NewWriter(os.Stdout)
	header := []string{
		"news_id", "ticker", "publisher", "category", "published_at", "session",
		"begin_price", "end_price", "price_change_pct", "index_price_change_pct",
		"alpha", "actual_direction", "volume",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, m := range moves {
		volume := ""
		if m.Move.Volume != nil {
			volume = strconv.FormatInt(*m.Move.Volume, 10)
		}
		row := []string{
			strconv.FormatInt(m.Event.ID, 10),
			m.Event.Ticker,
			m.Event.Publisher,
			m.Event.Category,
			m.Event.PublishedAt.In(loc).Format(time.RFC3339),
			string(m.Move.Session),
			strconv.FormatFloat(*m.Move.BeginPrice, 'f', 4, 64),
			strconv.FormatFloat(*m.Move.EndPrice, 'f', 4, 64),
			strconv.FormatFloat(m.Move.PriceChangePct, 'f', 4, 64),
			strconv.FormatFloat(m.Move.IndexPriceChangePct, 'f', 4, 64),
			strconv.FormatFloat(m.Move.Alpha, 'f', 4, 64),
			string(m.Move.ActualDirection),
			volume,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
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
