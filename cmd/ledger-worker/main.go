package main

import (
	"context"
	"os"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	applog "ledger/internal/log"
	"ledger/internal/storage"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger.Logger)

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the audit worker",
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		repo.Close()
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(logger.Logger)
	defer cancel()

	logger.Info("Starting ledger audit worker",
		"queue", cfg.AMQPQueue,
		"report_interval", cfg.AuditReportInterval)

	w := worker.NewAuditWorker(repo, logger.Logger)
	runErr := w.Run(ctx, client, cfg.AuditReportInterval)
	if runErr != nil {
		logger.Error("Audit worker stopped", applog.FieldError, runErr)
	}

	cli.RunShutdown(logger.Logger, 10*time.Second,
		func(ctx context.Context) error { return w.Report(ctx) },
		func(context.Context) error { return client.Close() },
		func(context.Context) error { return repo.Close() },
	)

	if runErr != nil {
		os.Exit(1)
	}
}
