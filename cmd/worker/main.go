package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"storyboard/internal/adapter/events"
	"storyboard/internal/bootstrap"
	"storyboard/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer stores.Close()

	providers, err := bootstrap.BuildProviders(ctx, cfg, stores.Credentials, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure providers")
	}
	metrics, _, err := bootstrap.NewMetrics(cfg.Batch.WorkerID)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure metrics")
	}
	notifier, closeEvents := bootstrap.ConnectEvents(cfg, "storyboard-worker", logger)
	defer closeEvents()

	manager := bootstrap.NewManager(cfg, stores, providers.Illustrator, notifier, metrics, logger)
	if cfg.Batch.Embedded {
		logger.Warn().Msg("worker: BATCH_WORKER_EMBEDDED is set; run either this worker or an api with the embedded worker, not both")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Run(gctx)
	})
	if notifier != nil {
		g.Go(func() error {
			return notifier.Listen(gctx, func(ev events.JobCreatedEvent) {
				logger.Debug().Str("job_id", ev.JobID).Str("subject_id", ev.SubjectID).Msg("worker: woken by job event")
				manager.Wake()
			})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
