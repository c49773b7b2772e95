// Command sql-agent answers one natural-language question about a SQL
// database with a tool-calling chat model and prints the answer.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/upb/analytics-tools/config"
	"github.com/upb/analytics-tools/internal/observability"
	"github.com/upb/analytics-tools/internal/shared"
	"github.com/upb/analytics-tools/repositories/sqldb"
	"github.com/upb/analytics-tools/services/providers/openai"
	"github.com/upb/analytics-tools/services/sqlagent"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "sql-agent: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.ValidateAgent(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	ctx, _ = shared.NewRun(ctx)
	log := observability.WithRun(ctx, logger)
	log.Info("starting sql agent",
		zap.String("preset", cfg.Agent.Preset),
		zap.String("database", cfg.Agent.LogString()),
		zap.String("model", cfg.Agent.Model))

	db, err := sqldb.Open(ctx, cfg.Agent.DatabaseURL, logger)
	if err != nil {
		log.Error("failed to open database", zap.Error(err))
		return err
	}
	defer db.Close()

	agent := sqlagent.New(
		openai.NewFromConfig(cfg.Providers.OpenAI),
		db,
		sqlagent.OptionsFromConfig(cfg.Agent),
		logger,
	)

	result, err := agent.Invoke(ctx, cfg.Agent.Question)
	if err != nil {
		log.Error("agent failed", zap.Error(err))
		return err
	}

	_, err = fmt.Fprintln(out, result.Answer)
	return err
}
