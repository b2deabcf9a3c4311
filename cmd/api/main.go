package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/congo-pay/fxwallet/internal/config"
	"github.com/congo-pay/fxwallet/internal/events"
	"github.com/congo-pay/fxwallet/internal/infra"
	"github.com/congo-pay/fxwallet/internal/logging"
	"github.com/congo-pay/fxwallet/internal/metrics"
	"github.com/congo-pay/fxwallet/internal/routes"
	"github.com/congo-pay/fxwallet/internal/server"
	"github.com/congo-pay/fxwallet/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.AppName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := store.Migrate(ctx, db); err != nil {
			logger.Error("migrate schema", "error", err)
			os.Exit(1)
		}
	}

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if cache != nil {
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	bus := events.NewBus(events.BusConfig{}, logger)
	var publisher events.Publisher = bus
	var consumer *events.KafkaConsumer
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warn("close kafka writer", "error", err)
			}
		}()
		publisher = kafkaPublisher
		consumer = events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, bus, logger)
		logger.Info("user events routed through kafka", "topic", cfg.KafkaTopic)
	}

	srv, err := server.New(routes.Deps{
		Cfg:        cfg,
		DB:         db,
		Cache:      cache,
		Logger:     logger,
		Metrics:    m,
		Publisher:  publisher,
		Subscriber: bus,
	}, registry)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		bus.Run(workerCtx)
	}()
	if consumer != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := consumer.Run(workerCtx); err != nil {
				logger.Error("kafka consumer stopped", "error", err)
			}
		}()
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErrCh:
		stopWorkers()
		workers.Wait()
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	stopWorkers()
	workers.Wait()

	logger.Info("server exited cleanly")
}
