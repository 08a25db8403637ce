// Command weatherlined runs the weatherline server: a TCP line-protocol
// weather information service with an ops HTTP sidecar for health and
// metrics.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/nimbusline/weatherline/internal/adapter/http"
	kafkaadapter "github.com/nimbusline/weatherline/internal/adapter/kafka"
	"github.com/nimbusline/weatherline/internal/adapter/postgres"
	"github.com/nimbusline/weatherline/internal/config"
	"github.com/nimbusline/weatherline/internal/domain"
	"github.com/nimbusline/weatherline/internal/observability"
	"github.com/nimbusline/weatherline/internal/provision"
	"github.com/nimbusline/weatherline/internal/seed"
	"github.com/nimbusline/weatherline/internal/server"
	"github.com/nimbusline/weatherline/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	logger.Info("starting weatherline", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Seed the in-memory stores from the flat files.
	loader := seed.NewLoader(logger)

	weatherRecords, err := loader.LoadWeatherRecords(cfg.WeatherDataFile)
	if err != nil {
		logger.Error("failed to load weather seed", "error", err)
		os.Exit(1)
	}
	weatherStore := store.NewWeatherStore(weatherRecords)

	usersFile := cfg.UsersFile
	userStore := store.NewUserStore(func(users []domain.User) error {
		return seed.WriteUsers(usersFile, users)
	}, logger)

	seedUsers, err := loader.LoadUsers(usersFile)
	if err != nil {
		logger.Error("failed to load users seed", "error", err)
		os.Exit(1)
	}
	for _, u := range seedUsers {
		// Bulk import upserts: re-seeded usernames get password/role updates.
		userStore.Upsert(u)
	}
	logger.Info("stores seeded", "weather_records", weatherStore.Len(), "users", userStore.Len())

	// Mutation mirrors (feature-flagged via KAFKA_ENABLED / WAREHOUSE_DSN).
	var sinks domain.FanoutSink

	if cfg.KafkaEnabled {
		publisher := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		sinks = append(sinks, publisher)
		logger.Info("kafka mutation stream enabled", "topic", cfg.KafkaSinkTopic)
	}

	if cfg.WarehouseEnabled {
		warehouse, err := postgres.Open(ctx, cfg.WarehouseDSN, logger)
		if err != nil {
			logger.Error("failed to open warehouse", "error", err)
			os.Exit(1)
		}
		defer warehouse.Close()

		// Mirror the seeded state so the warehouse starts in sync.
		for _, u := range userStore.SnapshotAll() {
			if err := warehouse.UserRegistered(ctx, u); err != nil {
				logger.Warn("seed user mirror failed", "username", u.Username, "error", err)
			}
		}
		if err := warehouse.WeatherProvisioned(ctx, weatherRecords); err != nil {
			logger.Warn("seed weather mirror failed", "error", err)
		}

		sinks = append(sinks, warehouse)
		logger.Info("warehouse mirror enabled")
	}

	var sink domain.Sink = domain.NoopSink{}
	if len(sinks) > 0 {
		sink = sinks
	}

	srv := server.New(server.Options{
		Addr:        cfg.ListenAddr,
		Users:       userStore,
		Weather:     weatherStore,
		Provisioner: provision.NewService(cfg.WeatherDataFile, weatherStore, logger),
		Sink:        sink,
		Radius:      cfg.NearestRadius,
		Logger:      logger,
		Metrics:     metrics,
	})

	opsSrv := httpadapter.NewServer(cfg.HTTPAddr, srv, logger)

	// Start ops HTTP server.
	go func() {
		if err := opsSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops http server error", "error", err)
		}
	}()

	// Run the protocol listener. Returns when the context is cancelled by a
	// signal or a STOP command.
	if err := srv.Serve(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
