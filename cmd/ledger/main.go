package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledger/internal/backend"
	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
	"ledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger.Logger)

	ctx, cancel := cli.SignalContext(logger.Logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldBackend, cfg.DataBackend, applog.FieldError, err)
		os.Exit(1)
	}

	svc := services.Open(ctx, res.Store, res.Publisher, logger.Logger,
		ledger.WithZeroFill(cfg.ZeroFillCategories))

	srv := apphttp.NewServer(":"+cfg.Port, svc, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		cli.RunShutdown(logger.Logger, 30*time.Second,
			srv.Shutdown,
			svc.Close,
			func(context.Context) error {
				if res.Cleanup == nil {
					return nil
				}
				return res.Cleanup()
			},
		)
	}()

	logger.Info("Starting ledger server",
		"port", cfg.Port,
		applog.FieldBackend, cfg.DataBackend,
		"amqp_enabled", res.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
