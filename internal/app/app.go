// Package app wires the configured pipeline together: database client,
// decoder registry, periodic jobs, acquisition clients, and graceful
// shutdown.
package app

import (
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/surfacemet/surfaced/internal/acquisition/dcp"
	"github.com/surfacemet/surfaced/internal/acquisition/ftpingest"
	"github.com/surfacemet/surfaced/internal/acquisition/lightning"
	"github.com/surfacemet/surfaced/internal/database"
	"github.com/surfacemet/surfaced/internal/export"
	"github.com/surfacemet/surfaced/internal/ingest"
	"github.com/surfacemet/surfaced/internal/log"
	"github.com/surfacemet/surfaced/internal/managers"
	"github.com/surfacemet/surfaced/internal/prediction"
	"github.com/surfacemet/surfaced/internal/qc"
	"github.com/surfacemet/surfaced/internal/summary"
	"github.com/surfacemet/surfaced/pkg/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSpoolDir = "/var/spool/surfaced"

// App represents the main application
type App struct {
	config *config.ConfigData
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	return &App{
		config: cfg,
		logger: logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dbClient := database.NewClient(&a.config.Database, a.logger)
	if err := dbClient.Connect(); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	db := dbClient.DB

	spoolDir := a.config.Ingest.SpoolDir
	if spoolDir == "" {
		spoolDir = defaultSpoolDir
	}

	registry := ingest.NewRegistry()
	a.registerDecoders(registry, db)
	registry.SetDefault(a.config.Ingest.DefaultDecoder)

	summaryEngine := summary.NewEngine(db, a.logger)
	qcEngine := qc.NewEngine(db, a.logger)
	ingestScheduler := ingest.NewScheduler(db, registry, a.logger)

	sched := a.config.Schedule

	jobManager := managers.NewJobManager(ctx, &wg, a.logger)
	jobManager.Register("ingest-batch",
		managers.ParseInterval(sched.IngestInterval, time.Minute),
		ingestScheduler.RunBatch)
	jobManager.Register("hourly-summary-backlog",
		managers.ParseInterval(sched.SummaryBacklogInterval, 5*time.Minute),
		summaryEngine.ProcessHourlyBacklog)
	jobManager.Register("daily-summary-backlog",
		managers.ParseInterval(sched.SummaryBacklogInterval, 5*time.Minute),
		summaryEngine.ProcessDailyBacklog)
	jobManager.Register("last24h-summary",
		managers.ParseInterval(sched.Last24hInterval, 10*time.Minute),
		func(ctx context.Context) error { return summaryEngine.CalculateLast24h(ctx) })
	jobManager.Register("minimum-interval",
		managers.ParseInterval(sched.MinimumIntervalInterval, time.Hour),
		func(ctx context.Context) error {
			return summaryEngine.CalculateMinimumInterval(ctx, time.Time{}, time.Time{}, nil)
		})
	jobManager.Register("quality-control",
		managers.ParseInterval(sched.QCInterval, time.Hour),
		qcEngine.Run)

	exportDir := a.config.Export.OutputDir
	if exportDir == "" {
		exportDir = filepath.Join(spoolDir, "exports")
	}
	location := time.UTC
	if a.config.Export.TimezoneName != "" {
		if loc, err := time.LoadLocation(a.config.Export.TimezoneName); err == nil {
			location = loc
		} else {
			a.logger.Warnw("invalid export timezone, using UTC", "timezone", a.config.Export.TimezoneName)
		}
	}
	exporter := export.NewExporter(db, exportDir, location, a.logger)
	jobManager.Register("export",
		managers.ParseInterval(sched.ExportInterval, time.Minute),
		exporter.RunPending)

	if a.config.Prediction != nil && a.config.Prediction.URL != "" {
		predictionClient := prediction.NewClient(db, a.config.Prediction, a.logger)
		jobManager.Register("prediction",
			managers.ParseInterval(sched.PredictionInterval, 15*time.Minute),
			predictionClient.RunAll)
	}

	jobManager.Start()

	acquisitionManager := managers.NewAcquisitionManager(ctx, &wg, a.logger)
	acquisitionManager.SetFTPPuller(ftpingest.NewPuller(db, spoolDir, a.logger))

	if a.config.Lightning != nil && a.config.Lightning.Hostname != "" {
		handler := a.lightningFrameHandler(db, spoolDir)
		acquisitionManager.SetLightningClient(
			lightning.NewClient(a.config.Lightning, handler, a.logger))
	}

	if a.config.LRGS != nil && a.config.LRGS.ExecutablePath != "" {
		acquisitionManager.SetDCPScheduler(
			dcp.NewScheduler(db, a.config.LRGS, spoolDir, a.logger),
			managers.ParseInterval(sched.DCPInterval, 5*time.Minute))
	}

	acquisitionManager.Start()

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}

// registerDecoders installs the built-in decoders. NESA is a deployment
// plug-in; until one is registered, jobs for that format fail as
// configuration errors.
func (a *App) registerDecoders(registry *ingest.Registry, db *gorm.DB) {
	csvDecoder := ingest.NewCSVDecoder(db, a.logger, false)
	dailyDecoder := ingest.NewCSVDecoder(db, a.logger, true)

	registry.Register("TOA5", csvDecoder)
	registry.Register("SURFACE", csvDecoder)
	registry.Register("HYDROLOGY", csvDecoder)
	registry.Register("HOBO", csvDecoder)
	registry.Register("MANUAL-HOURLY", csvDecoder)
	registry.Register("MANUAL-DAILY", dailyDecoder)
	registry.Register("FLASH", ingest.NewFlashDecoder(db, a.logger))
}

// lightningFrameHandler spools each in-box strike frame and enqueues it
// for the FLASH decoder
func (a *App) lightningFrameHandler(db *gorm.DB, spoolDir string) lightning.FrameHandler {
	return func(ctx context.Context, frame []byte) error {
		now := time.Now().UTC()
		dir := filepath.Join(spoolDir, "FLASH", now.Format("2006/01/02"))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating flash spool directory: %w", err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%d.bin", now.UnixNano()))
		if err := os.WriteFile(path, frame, 0o644); err != nil {
			return fmt.Errorf("spooling flash frame: %w", err)
		}
		return ingest.Enqueue(ctx, db, &database.StationDataFile{
			DecoderName: "FLASH",
			Filepath:    path,
			FileHash:    fmt.Sprintf("%x", md5.Sum(frame)),
			FileSize:    int64(len(frame)),
		})
	}
}
