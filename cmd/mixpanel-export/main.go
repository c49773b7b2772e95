// Command mixpanel-export downloads raw Mixpanel events for a date range,
// flattens their properties and writes them to a CSV file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/upb/analytics-tools/config"
	"github.com/upb/analytics-tools/internal/observability"
	"github.com/upb/analytics-tools/internal/shared"
	"github.com/upb/analytics-tools/services/export"
	"github.com/upb/analytics-tools/services/mixpanel"
	"github.com/upb/analytics-tools/storage"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mixpanel-export: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.ValidateExporter(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	ctx, runID := shared.NewRun(ctx)
	log := observability.WithRun(ctx, logger)

	exporter, err := buildExporter(ctx, cfg, logger)
	if err != nil {
		log.Error("failed to initialise exporter", zap.Error(err))
		return err
	}

	dates := mixpanel.DateRange{From: cfg.Export.FromDate, To: cfg.Export.ToDate}
	log.Info("starting export",
		zap.String("range", dates.String()),
		zap.String("output", cfg.Export.OutputPath),
		zap.String("environment", cfg.Environment))

	summary, err := exporter.Run(ctx, dates)
	if err != nil {
		log.Error("export failed", zap.Error(err))
		return err
	}

	log.Info("done",
		zap.String("run_id", runID),
		zap.Int("events", summary.Events),
		zap.Bool("written", summary.Written),
		zap.String("object_key", summary.ObjectKey))
	return nil
}

func buildExporter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*export.Exporter, error) {
	exporter := export.NewExporter(
		mixpanel.NewClient(cfg.Mixpanel, logger),
		export.NewProjector(cfg.Export.KeySeparator),
		export.NewCSVWriter(logger),
		cfg.Export.OutputPath,
		logger,
	)

	if cfg.Export.S3.Enabled() {
		store, err := storage.NewS3Store(ctx, cfg.Export.S3, logger)
		if err != nil {
			return nil, err
		}
		exporter.WithObjectStore(store)
	}

	return exporter, nil
}
