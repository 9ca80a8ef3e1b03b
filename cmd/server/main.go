// Package main is the entry point for the QuantRank stock ranking service.
// It keeps daily price history and fundamentals for the NSE/BSE universe
// current, scores every stock under five strategies, and serves rankings
// and pipelines over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantrank/quantrank/internal/clients/yahoo"
	"github.com/quantrank/quantrank/internal/config"
	"github.com/quantrank/quantrank/internal/database"
	"github.com/quantrank/quantrank/internal/modules/market"
	"github.com/quantrank/quantrank/internal/modules/pending"
	"github.com/quantrank/quantrank/internal/modules/pipeline"
	"github.com/quantrank/quantrank/internal/modules/scoring"
	"github.com/quantrank/quantrank/internal/modules/universe"
	"github.com/quantrank/quantrank/internal/poller"
	"github.com/quantrank/quantrank/internal/reliability"
	"github.com/quantrank/quantrank/internal/scheduler"
	"github.com/quantrank/quantrank/internal/server"
	"github.com/quantrank/quantrank/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Int("instance", cfg.InstanceID).
		Msg("Starting QuantRank")

	// Database
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath,
		Profile: database.ProfileStandard,
		Name:    "quantrank",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database schema")
	}

	// Trading calendar
	calendar, err := market.NewCalendar()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load exchange timezone")
	}

	// Repositories
	metaRepo := universe.NewMetadataRepository(db.Conn(), log)
	priceRepo := universe.NewPriceRepository(db.Conn(), log)
	scoreRepo := scoring.NewScoreRepository(db.Conn(), log)
	ledger := pending.NewLedgerRepository(db.Conn(), log)
	tracker := pending.NewTrackerRepository(db.Conn(), log)

	// Services
	scorer := scoring.NewService(metaRepo, priceRepo, scoreRepo, log)
	executor := pipeline.NewExecutor(metaRepo, scorer, log)
	yahooClient := yahoo.NewClient(log)

	pricePoller := poller.NewPricePoller(
		yahooClient, metaRepo, priceRepo, ledger, tracker, scorer, calendar, log)
	attributePoller := poller.NewAttributePoller(
		yahooClient, metaRepo, ledger, cfg.InstanceID, log)

	// Scheduler
	sched := scheduler.New(log)

	if cfg.PricePollerEnabled {
		if err := sched.AddJob("@every 1m", pricePoller); err != nil {
			log.Fatal().Err(err).Msg("Failed to register price poller")
		}
	}
	if cfg.AttributePollerEnabled {
		if err := sched.AddJob("@every 5m", attributePoller); err != nil {
			log.Fatal().Err(err).Msg("Failed to register attribute poller")
		}
	}

	// Nightly maintenance at 01:30 IST (20:00 UTC)
	maintenance := reliability.NewNightlyMaintenanceJob(db, ledger, log)
	if err := sched.AddJob("0 0 20 * * *", maintenance); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}

	// Nightly backup, only when a bucket is configured
	if cfg.Backup.Enabled() {
		storage, err := reliability.NewStorageClient(
			cfg.Backup.Endpoint, cfg.Backup.Region,
			cfg.Backup.AccessKeyID, cfg.Backup.SecretAccessKey,
			cfg.Backup.Bucket, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create backup storage client")
		}

		backup := reliability.NewBackupService(db, storage, cfg.DataDir, cfg.Backup.RetainCount, log)
		if err := sched.AddJob("0 30 20 * * *", backup); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Backups enabled")
	} else {
		log.Info().Msg("Backups disabled (no bucket configured)")
	}

	sched.Start()

	// HTTP server
	srv := server.New(server.Config{
		Log:             log,
		DB:              db,
		Port:            cfg.Port,
		DevMode:         cfg.DevMode,
		DataDir:         cfg.DataDir,
		MetaRepo:        metaRepo,
		PriceRepo:       priceRepo,
		ScoreRepo:       scoreRepo,
		Ledger:          ledger,
		Tracker:         tracker,
		Scorer:          scorer,
		Executor:        executor,
		Calendar:        calendar,
		PricePoller:     pricePoller,
		AttributePoller: attributePoller,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	// Graceful shutdown: stop new poller waves, drain jobs, close HTTP
	pricePoller.Stop()
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("QuantRank stopped")
}
