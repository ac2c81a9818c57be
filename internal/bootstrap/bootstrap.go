// Package bootstrap assembles the stores, providers and batch manager shared by
// the api, worker and jobctl commands.
package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"storyboard/internal/adapter/events"
	"storyboard/internal/adapter/repo"
	"storyboard/internal/adapter/sqlitestore"
	"storyboard/internal/batch"
	"storyboard/internal/db"
	"storyboard/internal/domain"
	"storyboard/internal/illustration"
	"storyboard/internal/infra"
	"storyboard/internal/infra/credentials"
	"storyboard/internal/providers/dashscope"
	"storyboard/internal/providers/image"
	"storyboard/internal/providers/prompt"
	"storyboard/internal/storage"
)

// Stores are the persistence backends selected by STORE_DRIVER.
// Credentials is nil for the sqlite driver.
type Stores struct {
	Jobs        domain.JobRepository
	Scripts     domain.ScriptRepository
	Credentials *credentials.Store
	close       func()
}

func (s *Stores) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// OpenStores connects to the configured database and applies its schema.
func OpenStores(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case infra.StoreDriverSQLite:
		sdb, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Jobs:    sqlitestore.NewJobStore(sdb),
			Scripts: sqlitestore.NewScriptStore(sdb),
			close:   func() { _ = sdb.Close() },
		}, nil
	case infra.StoreDriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		runner := infra.NewSQLRunner(pool, logger)
		return &Stores{
			Jobs:        repo.NewJobRepository(runner),
			Scripts:     repo.NewScriptRepository(runner),
			Credentials: credentials.NewStore(runner),
			close:       pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// TextAnalyzer describes chunks and splits scripts.
type TextAnalyzer interface {
	prompt.Analyzer
	prompt.Chunker
}

// Providers bundles the illustration pipeline.
type Providers struct {
	Illustrator *illustration.Illustrator
	Analyzer    TextAnalyzer
	Files       *storage.FileStore
}

// BuildProviders wires the image backends and text analysis. Keys missing from
// the environment are looked up in the credential store.
func BuildProviders(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger infra.Logger) (*Providers, error) {
	storagePath := cfg.StoragePath
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	files, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, err
	}

	dashKey, err := creds.Resolve(ctx, credentials.ProviderDashScope, cfg.DashScopeAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: failed to load dashscope key from store")
	}
	client := dashscope.NewClient(dashscope.Options{
		APIKey:     dashKey,
		BaseURL:    cfg.DashScopeBaseURL,
		ImageModel: cfg.QwenImageModel,
		TaskModel:  cfg.WanxImageModel,
		Logger:     &logger,
	})
	registry := image.NewRegistry(
		image.NewQwenGenerator(client),
		image.NewWanxGenerator(client, cfg.WanxPollInterval, cfg.WanxMaxPolls),
		image.NewSyntheticGenerator(),
	)
	if !client.HasCredentials() {
		logger.Warn().Msg("bootstrap: dashscope api key missing, only the synthetic provider is available")
	}

	var analyzer TextAnalyzer = prompt.NewStaticAnalyzer()
	openAIKey, err := creds.Resolve(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: failed to load openai key from store")
	}
	if openAIKey != "" {
		remote, err := prompt.NewOpenAIAnalyzer(prompt.OpenAIOptions{
			APIKey:  openAIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			OnFallback: func(reason string, err error) {
				logger.Warn().Err(err).Str("reason", reason).Msg("openai: falling back to static analysis")
			},
			OnWarning: func(reason, detail string) {
				logger.Warn().Str("reason", reason).Str("detail", detail).Msg("openai: configuration adjusted")
			},
		})
		if err != nil {
			return nil, err
		}
		analyzer = remote
	}

	return &Providers{
		Illustrator: illustration.New(registry, analyzer, files, logger),
		Analyzer:    analyzer,
		Files:       files,
	}, nil
}

// NewMetrics installs an SDK meter provider backed by a manual reader, which the
// api serves as a JSON snapshot.
func NewMetrics(workerID string) (*batch.Metrics, *sdkmetric.ManualReader, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	metrics, err := batch.NewMetrics(provider.Meter("storyboard/batch"), workerID)
	if err != nil {
		return nil, nil, err
	}
	return metrics, reader, nil
}

// ConnectEvents returns the NATS notifier, or nil when NATS_URL is unset or the
// server cannot be reached. The returned close func is always safe to call.
func ConnectEvents(cfg *infra.Config, name string, logger infra.Logger) (*events.Notifier, func()) {
	if cfg.NATSURL == "" {
		return nil, func() {}
	}
	nc, err := events.Connect(cfg.NATSURL, name, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: nats unavailable, wake-ups disabled")
		return nil, func() {}
	}
	return events.NewNotifier(nc, cfg.NATSSubject, logger), func() { _ = nc.Drain() }
}

// NewManager builds the batch manager. notifier may be nil.
func NewManager(cfg *infra.Config, stores *Stores, illustrator batch.Illustrator, notifier *events.Notifier, metrics *batch.Metrics, logger infra.Logger) *batch.Manager {
	deps := batch.Deps{
		Jobs:        stores.Jobs,
		Scripts:     stores.Scripts,
		Illustrator: illustrator,
		Metrics:     metrics,
		Logger:      logger,
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	return batch.NewManager(deps, batch.OptionsFromConfig(cfg.Batch, cfg.DefaultProvider))
}
