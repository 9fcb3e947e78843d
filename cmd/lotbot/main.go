// Package main wires together the lot-posting bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/chicagolots/lotbot/internal/api"
	"github.com/chicagolots/lotbot/internal/clock/system"
	"github.com/chicagolots/lotbot/internal/config"
	"github.com/chicagolots/lotbot/internal/geocode/nominatim"
	"github.com/chicagolots/lotbot/internal/imagery/streetview"
	"github.com/chicagolots/lotbot/internal/importer"
	"github.com/chicagolots/lotbot/internal/logging"
	"github.com/chicagolots/lotbot/internal/lotbot"
	"github.com/chicagolots/lotbot/internal/metrics"
	"github.com/chicagolots/lotbot/internal/social/bluesky"
	memstore "github.com/chicagolots/lotbot/internal/store/memory"
	pgstore "github.com/chicagolots/lotbot/internal/store/postgres"
	"github.com/chicagolots/lotbot/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	importPath := flag.String("import", "", "CSV file of properties to import before running")
	flag.Parse()

	// Credentials live in .env during local development.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer store.Close()

	if *importPath != "" {
		count, err := importer.ImportFile(ctx, store, *importPath, logger)
		if err != nil {
			logger.Fatal("import failed", zap.String("path", *importPath), zap.Error(err))
		}
		logger.Info("import complete", zap.Int("count", count))
	}

	clock := system.New()

	resolver := nominatim.New(nominatim.Config{
		BaseURL:   cfg.Geocode.BaseURL,
		UserAgent: cfg.Geocode.UserAgent,
		Timeout:   cfg.GeocodeTimeout(),
		Policy: lotbot.BackoffPolicy{
			MaxAttempts: cfg.Geocode.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Geocode.BackoffBaseMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Geocode.BackoffMaxMs) * time.Millisecond,
			Pause:       time.Duration(cfg.Geocode.PauseMs) * time.Millisecond,
		},
	}, logger.Named("geocode"))

	imagery, err := streetview.New(streetview.Config{
		BaseURL:   cfg.Image.BaseURL,
		APIKey:    cfg.Image.APIKey,
		ImageSize: cfg.Image.Size,
		SaveDir:   cfg.Image.SaveDir,
		Heading:   cfg.Image.Heading,
		Timeout:   time.Duration(cfg.Image.TimeoutSeconds) * time.Second,
	}, clock, logger.Named("imagery"))
	if err != nil {
		logger.Fatal("imagery init failed", zap.Error(err))
	}

	publisher, err := bluesky.New(bluesky.Config{
		BaseURL:     cfg.Social.BaseURL,
		Handle:      cfg.Social.Handle,
		AppPassword: cfg.Social.AppPassword,
	}, clock, logger.Named("social"))
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(store, logger.Named("api")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("status server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", zap.Error(err))
		}
	}()

	w := worker.New(store, resolver, imagery, publisher, clock, worker.Config{
		BatchSize:    cfg.Bot.BatchSize,
		PostInterval: cfg.PostInterval(),
		Cooldown:     cfg.Cooldown(),
	}, logger.Named("worker"))

	logger.Info("starting lot bot")
	runErr := w.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown failed", zap.Error(err))
	}

	if runErr != nil {
		logger.Error("worker stopped with error", zap.Error(runErr))
		os.Exit(1)
	}
	logger.Info("shut down cleanly")
}

func newStore(ctx context.Context, cfg config.Config) (lotbot.PropertyStore, error) {
	switch cfg.DB.Provider {
	case "postgres":
		return pgstore.New(ctx, pgstore.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
	case "memory":
		return memstore.NewPropertyStore(), nil
	default:
		return nil, fmt.Errorf("unknown db provider: %s", cfg.DB.Provider)
	}
}
