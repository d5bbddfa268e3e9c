package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"wyoming-stt-bridge/internal/app"
	"wyoming-stt-bridge/internal/config"
)

func main() {
	cfg := config.Load()
	a := app.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		log.Error().Err(err).Str("uri", cfg.Service.URI).Msg("Failed to start Wyoming server")
		a.Shutdown()
		os.Exit(1)
	}

	err := a.Run(ctx)
	a.Shutdown()
	if err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
}
