package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/omnikiosk/internal/app"
	"github.com/Proton-105/omnikiosk/pkg/config"
	"github.com/Proton-105/omnikiosk/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Sentry.Enabled {
		environment := cfg.Sentry.Environment
		if environment == "" {
			environment = cfg.AppEnv
		}

		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: environment,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to init sentry: %v\n", err)
			cfg.Sentry.Enabled = false
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	log := logger.New(cfg.Log, cfg.Sentry.Enabled)
	slog.SetDefault(log)

	log.Info("starting omnichain kiosk",
		slog.String("env", cfg.AppEnv),
		slog.String("kiosk_id", cfg.Kiosk.ID),
		slog.String("port", cfg.Server.Port),
	)

	if err := app.Run(ctx, cfg, v, log); err != nil {
		log.Error("kiosk stopped with error", slog.Any("error", err))
		stop()
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}

	log.Info("omnichain kiosk shut down")
}
