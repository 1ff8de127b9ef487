package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/salon-booking-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/salon-booking-platform/internal/config"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

// outbox-worker drains appointment events to the subscribers without serving
// HTTP. Run it with OUTBOX_IN_PROCESS=false on the API.
func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).With("component", "outbox-worker")
	if cfg.UseMemoryStore {
		logger.Error("outbox worker requires Postgres; unset USE_MEMORY_STORE")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	logger.Info("outbox worker started", "interval", cfg.OutboxInterval, "batch_size", cfg.OutboxBatchSize)
	app.Run(ctx)
	logger.Info("outbox worker stopped")
}
