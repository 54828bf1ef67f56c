// Command news-import seeds the news store from a JSON lines export
// produced by the upstream ingestion pipeline.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"newsalpha/internal/config"
	"newsalpha/internal/seed"
	"newsalpha/internal/store"
	"newsalpha/internal/util"
)

func main() {
	fileFlag := flag.String("file", "", "JSON lines event export, - for stdin (required)")
	flag.Parse()

	if *fileFlag == "" {
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

	in := os.Stdin
	if *fileFlag != "-" {
		f, err := os.Open(*fileFlag)
		if err != nil {
			log.Fatalf("failed to open %s: %v", *fileFlag, err)
		}
		defer f.Close()
		in = f
	}

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := seed.Load(ctx, in, st, logger); err != nil {
		log.Fatalf("import error: %v", err)
	}
}
