package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"storyboard/internal/bootstrap"
	"storyboard/internal/infra"
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(openRuntime).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openRuntime wires the same stores and providers as the api, without the HTTP
// server. Only warnings are logged so command output stays readable.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv, "jobctl").Level(zerolog.WarnLevel)

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	providers, err := bootstrap.BuildProviders(ctx, cfg, stores.Credentials, logger)
	if err != nil {
		stores.Close()
		return nil, err
	}
	notifier, closeEvents := bootstrap.ConnectEvents(cfg, "storyboard-jobctl", logger)
	manager := bootstrap.NewManager(cfg, stores, providers.Illustrator, notifier, nil, logger)
	return &runtime{
		manager: manager,
		creds:   stores.Credentials,
		close: func() {
			closeEvents()
			stores.Close()
		},
	}, nil
}
