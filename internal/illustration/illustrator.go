// Package illustration runs the text-analysis and image pipeline for a single chunk.
package illustration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
	"storyboard/internal/providers/image"
	"storyboard/internal/providers/prompt"
	"storyboard/internal/storage"
)

// Request identifies the chunk to illustrate and how.
type Request struct {
	RequestID string
	ScriptID  string
	ChunkID   string
	Content   string
	Config    domain.JobConfig
}

// Illustrator describes a chunk, renders one image (two for two-stage styles)
// and stores the bytes so the returned asset only carries public URLs.
type Illustrator struct {
	registry *image.Registry
	analyzer prompt.Analyzer
	files    *storage.FileStore
	logger   infra.Logger
	now      func() time.Time
}

func New(registry *image.Registry, analyzer prompt.Analyzer, files *storage.FileStore, logger infra.Logger) *Illustrator {
	return &Illustrator{
		registry: registry,
		analyzer: analyzer,
		files:    files,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProviderAvailable returns nil when provider can serve requests.
func (i *Illustrator) ProviderAvailable(provider string) error {
	_, err := i.registry.Lookup(provider)
	return err
}

// Catalog lists the configured providers.
func (i *Illustrator) Catalog() []image.ProviderInfo {
	return i.registry.Catalog()
}

// Illustrate produces the asset for one chunk. Two-stage styles succeed only
// when both images render.
func (i *Illustrator) Illustrate(ctx context.Context, req Request) (domain.ChunkAsset, error) {
	gen, err := i.registry.Lookup(req.Config.Provider)
	if err != nil {
		return domain.ChunkAsset{}, err
	}
	provider := string(gen.ID())

	scene, err := i.analyzer.DescribeScene(ctx, prompt.SceneRequest{
		Content: req.Content,
		Style:   req.Config.Style,
		Color:   req.Config.Color,
	})
	if err != nil {
		return domain.ChunkAsset{}, analysisError(err)
	}

	primary, err := i.render(ctx, gen, req, image.RoleScene, scene.Text)
	if err != nil {
		return domain.ChunkAsset{}, err
	}

	metadata := map[string]any{
		"storage_key":    primary.key,
		"format":         primary.asset.Format,
		"width":          primary.asset.Width,
		"height":         primary.asset.Height,
		"analyzer":       scene.Provider,
		"style":          req.Config.Style,
		"quality":        req.Config.Quality,
		"aspect_ratio":   req.Config.AspectRatio,
		"provider_extra": primary.asset.Metadata,
	}
	if primary.asset.URL != "" {
		metadata["remote_url"] = primary.asset.URL
	}
	if reason, ok := scene.Metadata["fallback_reason"]; ok {
		metadata["analyzer_fallback"] = reason
	}

	asset := domain.ChunkAsset{
		ImageURL:         primary.url,
		SceneDescription: scene.Text,
		Provider:         provider,
		Metadata:         metadata,
	}

	if req.Config.TwoStage() {
		symbol, err := i.analyzer.DescribeSymbol(ctx, prompt.SymbolRequest{Content: req.Content, Scene: scene.Text})
		if err != nil {
			return domain.ChunkAsset{}, analysisError(err)
		}
		secondary, err := i.render(ctx, gen, req, image.RoleSymbol, symbol.Text)
		if err != nil {
			return domain.ChunkAsset{}, err
		}
		asset.SecondaryImageURL = secondary.url
		asset.SymbolDescription = symbol.Text
		metadata["secondary_storage_key"] = secondary.key
		if secondary.asset.URL != "" {
			metadata["secondary_remote_url"] = secondary.asset.URL
		}
	}

	generatedAt := i.now()
	asset.GeneratedAt = &generatedAt
	i.logger.Debug().
		Str("chunk_id", req.ChunkID).
		Str("provider", provider).
		Bool("two_stage", req.Config.TwoStage()).
		Msg("chunk illustrated")
	return asset, nil
}

type renderedImage struct {
	asset *image.Asset
	key   string
	url   string
}

func (i *Illustrator) render(ctx context.Context, gen image.Generator, req Request, role, description string) (*renderedImage, error) {
	provider := string(gen.ID())
	started := i.now()
	asset, err := gen.Generate(ctx, image.GenerateRequest{
		Description: description,
		Role:        role,
		Style:       req.Config.Style,
		Color:       req.Config.Color,
		Quality:     req.Config.Quality,
		AspectRatio: req.Config.AspectRatio,
		RequestID:   req.RequestID,
		Options:     req.Config.Options,
	})
	if err != nil {
		return nil, domain.ClassifyProviderError(provider, err)
	}
	if asset == nil || len(asset.Data) == 0 {
		return nil, domain.NewProviderError(domain.ErrProviderFailure, provider, errors.New("provider returned no image data"))
	}

	key, err := i.files.Write(ctx, storage.AssetKey(req.ScriptID, req.ChunkID, role, asset.Format), asset.Data)
	if err != nil {
		return nil, fmt.Errorf("store %s image: %w", role, err)
	}
	i.logger.Debug().
		Str("chunk_id", req.ChunkID).
		Str("provider", provider).
		Str("role", role).
		Dur("elapsed", i.now().Sub(started)).
		Msg("image rendered")
	return &renderedImage{asset: asset, key: key, url: i.files.PublicURL(key)}, nil
}

func analysisError(err error) error {
	if errors.Is(err, domain.ErrInvalidInput) {
		return fmt.Errorf("describe chunk: %w", err)
	}
	return domain.ClassifyProviderError("analyzer", fmt.Errorf("describe chunk: %w", err))
}

// ValidateConfig normalizes cfg and checks its style against the supported set.
func ValidateConfig(cfg domain.JobConfig, defaultProvider string) (domain.JobConfig, error) {
	cfg = cfg.Normalize(defaultProvider)
	switch cfg.Style {
	case domain.StyleIllustration, domain.StyleSymbolic, domain.StyleDual:
	default:
		return cfg, fmt.Errorf("%w: unsupported style %q", domain.ErrInvalidInput, cfg.Style)
	}
	if _, ok := image.ParseProviderID(cfg.Provider); !ok {
		return cfg, domain.NewProviderError(domain.ErrProviderUnavailable, cfg.Provider, fmt.Errorf("unknown provider %q", strings.TrimSpace(cfg.Provider)))
	}
	return cfg, nil
}
