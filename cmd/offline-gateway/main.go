// Command offline-gateway serves a single origin through an offline-first
// cache worker: cache-first responses with background revalidation, a
// manifest-driven install/activate lifecycle, and a control API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonesrussell/offline-gateway/internal/app"
	"github.com/jonesrussell/offline-gateway/internal/config"
	"github.com/jonesrussell/offline-gateway/internal/gateway"
	"github.com/jonesrussell/offline-gateway/internal/logger"
	"github.com/jonesrussell/offline-gateway/internal/profiling"
	"github.com/jonesrussell/offline-gateway/internal/store"
	"github.com/jonesrussell/offline-gateway/internal/telemetry"
	"github.com/jonesrussell/offline-gateway/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	profiling.StartPprofServer()

	cfg, err := config.Load(config.Path("config.yml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()
	log = log.With(logger.String("service", cfg.Service.Name))

	log.Info("Starting offline gateway",
		logger.String("version", cfg.Service.Version),
		logger.Int("port", cfg.Service.Port),
		logger.String("origin", cfg.Origin.BaseURL),
		logger.String("backend", cfg.Cache.Backend),
	)

	profiler, err := profiling.StartPyroscope(cfg.Service.Name, cfg.Service.Version)
	if err != nil {
		log.Warn("Continuous profiling unavailable", logger.Error(err))
	}
	defer func() { _ = profiler.Stop() }()

	storage, err := buildStorage(cfg, log)
	if err != nil {
		log.Error("Failed to create storage backend", logger.Error(err))
		return 1
	}

	fetcher, err := worker.NewHTTPFetcher(cfg.Origin.BaseURL, cfg.Origin.Timeout)
	if err != nil {
		log.Error("Failed to create origin fetcher", logger.Error(err))
		return 1
	}

	metrics := telemetry.New()
	supervisor := app.NewSupervisor(cfg, storage, fetcher, log, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := supervisor.Start(ctx); err != nil {
		log.Error("Initial install failed", logger.Error(err))
		return 1
	}
	defer supervisor.Shutdown()

	if cfg.Cache.WatchManifest {
		go func() {
			if err := supervisor.WatchManifest(ctx); err != nil {
				log.Error("Manifest watcher stopped", logger.Error(err))
			}
		}()
	}

	handler := gateway.NewHandler(supervisor, cfg.Origin.BaseURL, cfg.Origin.Timeout, log)
	server := gateway.NewServer(cfg, handler, metrics, log)

	if err := server.Run(ctx); err != nil {
		log.Error("Server error", logger.Error(err))
		return 1
	}
	return 0
}

func buildStorage(cfg *config.Config, log logger.Logger) (store.Storage, error) {
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		client, err := store.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		log.Info("Connected to Redis", logger.String("address", cfg.Redis.Address))
		return store.NewRedisStorage(client), nil
	default:
		return store.NewMemoryStorage(), nil
	}
}
