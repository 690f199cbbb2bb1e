package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"stager/internal/bootstrap"
	"stager/internal/http/handlers"
	httpapi "stager/internal/http/httpapi"
	"stager/internal/infra"
	"stager/internal/infra/geoip"
	"stager/internal/lifecycle"
	"stager/internal/middleware"
	"stager/internal/worker"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open job store")
	}
	defer closeStore()

	blobs, err := bootstrap.OpenBlobs(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob storage")
	}

	invoker, err := bootstrap.NewInvoker(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build transform provider")
	}

	policy, err := bootstrap.Policy(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid lifecycle policy")
	}

	pool := worker.NewPool(worker.Options{
		Concurrency: cfg.WorkerConcurrency,
		QueueSize:   cfg.WorkerQueueSize,
		Logger:      &logger,
	})

	manager, err := lifecycle.NewManager(lifecycle.Deps{
		Store:        store,
		Blobs:        blobs,
		Invoker:      invoker,
		Preprocessor: bootstrap.NewPreprocessor(cfg),
		Pool:         pool,
		Reporter:     lifecycle.LogReporter{Logger: logger},
		Logger:       &logger,
	}, policy)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build lifecycle manager")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var lookup middleware.CountryLookup
	if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	app := handlers.NewApp(manager, &logger, cfg.MaxUploadBytes)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   lookup,
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		manager.RunWatchdog(watchdogCtx, cfg.WatchdogInterval)
	}()

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("store", cfg.StoreDriver).
			Str("blobs", cfg.BlobDriver).
			Str("provider", cfg.TransformProvider).
			Int("workers", cfg.WorkerConcurrency).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	stopWatchdog()
	<-watchdogDone

	if err := pool.Stop(shutdownCtx); err != nil {
		logger.Warn().
			Err(err).
			Int64("in_flight", manager.Stats().InFlight).
			Msg("worker pool did not drain; processing jobs will be reclaimed by the watchdog")
	}
	logger.Info().Msg("server stopped")
}
