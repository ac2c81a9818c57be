package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"storyboard/internal/bootstrap"
	httpapi "storyboard/internal/http"
	"storyboard/internal/http/handlers"
	"storyboard/internal/infra"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to open stores")
	}
	defer stores.Close()

	providers, err := bootstrap.BuildProviders(ctx, cfg, stores.Credentials, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure providers")
	}
	metrics, reader, err := bootstrap.NewMetrics(cfg.Batch.WorkerID)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure metrics")
	}
	notifier, closeEvents := bootstrap.ConnectEvents(cfg, "storyboard-api", logger)
	defer closeEvents()

	manager := bootstrap.NewManager(cfg, stores, providers.Illustrator, notifier, metrics, logger)

	app := handlers.NewApp(handlers.Deps{
		Batch:           manager,
		Scripts:         stores.Scripts,
		Chunker:         providers.Analyzer,
		Catalog:         providers.Illustrator,
		Files:           providers.Files,
		Metrics:         reader,
		DefaultProvider: cfg.DefaultProvider,
		Logger:          logger,
	})
	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Str("store", cfg.StoreDriver).Msg("api: listening")
		return server.Serve(gctx)
	})
	if cfg.Batch.Embedded {
		g.Go(func() error {
			return manager.Run(gctx)
		})
	} else {
		logger.Info().Msg("api: embedded batch worker disabled")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("api: stopped with error")
	}
	logger.Info().Msg("api: stopped")
}
