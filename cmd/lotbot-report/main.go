// Package main prints the posting cadence needed to clear the backlog.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/chicagolots/lotbot/internal/config"
	"github.com/chicagolots/lotbot/internal/report"
	pgstore "github.com/chicagolots/lotbot/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	years := flag.Int("years", 30, "Completion horizon in years")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pgstore.New(ctx, pgstore.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "store init failed: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	stats, err := store.Statistics(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "statistics query failed: %v\n", err)
		os.Exit(1)
	}

	cadence := report.Analyze(stats, *years, time.Now().UTC())
	if err := report.Write(os.Stdout, cadence); err != nil {
		fmt.Fprintf(os.Stderr, "write report failed: %v\n", err)
		os.Exit(1)
	}
}
