package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fleettrack/internal/app"
	"fleettrack/internal/config"
	"fleettrack/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logging.Error().Err(err).Msg("failed to build application")
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		logging.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}
