// Package main is the entry point for the tradedesk advisory server: a
// single-user, event-driven system that watches the market, proposes
// trade signals through an LLM-backed agent pipeline, gates them through
// a risk engine, and delivers approved signals to whichever chat
// integrations are configured.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/config"
	"github.com/aristath/tradedesk/internal/di"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/pkg/logger"
)

const shutdownGrace = 10 * time.Second

func main() {
	dataDir := flag.String("data-dir", "", "override the data directory (defaults to TRADEDESK_DATA_DIR or ~/.tradedesk/data)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *dataDir != "" {
		cfg, err = config.Load(*dataDir)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logger.New(logger.Config{Level: "info", Pretty: true}).Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("starting tradedesk")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("error closing container")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container.Scheduler.Start(ctx)
	container.Watcher.Start(ctx)

	startedAdapters := startInputAdapters(ctx, container.Registry, log)

	log.Info().Msg("tradedesk is running")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	for _, adapter := range startedAdapters {
		if err := adapter.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Str("adapter", adapter.Name()).Msg("error stopping input adapter")
		}
	}
	container.Scheduler.Stop(shutdownGrace)
	container.Watcher.Stop(shutdownGrace)

	log.Info().Msg("shutdown complete")
}

// startInputAdapters starts every registered InputAdapter that also needs
// an explicit Start call (chat pollers, the websocket and webhook
// listeners). It returns only the adapters that started successfully, so
// shutdown doesn't try to stop something that never came up.
func startInputAdapters(ctx context.Context, reg *registry.Registry, log zerolog.Logger) []protocols.InputAdapter {
	var started []protocols.InputAdapter
	for _, plugin := range reg.GetAll(registry.KindInput) {
		adapter, ok := plugin.(protocols.InputAdapter)
		if !ok {
			continue
		}
		if err := adapter.Start(ctx); err != nil {
			log.Error().Err(err).Str("adapter", adapter.Name()).Msg("failed to start input adapter")
			continue
		}
		started = append(started, adapter)
	}
	return started
}
