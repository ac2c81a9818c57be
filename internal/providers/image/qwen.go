package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storyboard/internal/domain"
	"storyboard/internal/providers/dashscope"
)

type syncImageClient interface {
	GenerateImage(context.Context, dashscope.ImageRequest) (*dashscope.ImageAsset, error)
	HasCredentials() bool
	ImageModel() string
}

// QwenGenerator renders images through DashScope's synchronous qwen-image endpoint.
type QwenGenerator struct {
	client syncImageClient
}

// NewQwenGenerator wires a synchronous DashScope client.
func NewQwenGenerator(client syncImageClient) *QwenGenerator {
	return &QwenGenerator{client: client}
}

func (g *QwenGenerator) ID() ProviderID { return ProviderQwen }

func (g *QwenGenerator) Available() bool {
	return g != nil && g.client != nil && g.client.HasCredentials()
}

// Generate fulfils the Generator interface.
func (g *QwenGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if !g.Available() {
		return nil, domain.NewProviderError(domain.ErrProviderUnavailable, string(ProviderQwen), dashscope.ErrMissingAPIKey)
	}
	prompt := BuildIllustrationPrompt(req)
	imageReq := dashscope.ImageRequest{
		Prompt:         prompt,
		NegativePrompt: DefaultNegativePrompt,
		Size:           AspectRatioSize(req.AspectRatio),
		Seed:           deterministicSeed(req.RequestID, req.Role, prompt),
		RequestID:      req.RequestID,
	}

	asset, err := g.invoke(ctx, imageReq)
	if err != nil {
		return nil, classifyDashScopeError(ProviderQwen, err)
	}
	return &Asset{
		URL:    asset.URL,
		Format: normalizeFormat(asset.Format),
		Width:  asset.Width,
		Height: asset.Height,
		Data:   asset.Data,
		Metadata: map[string]any{
			"model": g.client.ImageModel(),
			"size":  imageReq.Size,
			"seed":  imageReq.Seed,
		},
	}, nil
}

func (g *QwenGenerator) String() string {
	if g == nil || g.client == nil {
		return string(ProviderQwen)
	}
	return g.client.ImageModel()
}

var _ Generator = (*QwenGenerator)(nil)

// invoke retries a transient failure once with a simplified request.
func (g *QwenGenerator) invoke(ctx context.Context, req dashscope.ImageRequest) (*dashscope.ImageAsset, error) {
	asset, err := g.client.GenerateImage(ctx, req)
	if err == nil {
		return asset, nil
	}
	if !dashscope.IsTransient(err) || ctx.Err() != nil {
		return nil, err
	}
	simplified := req
	simplified.NegativePrompt = ""
	asset, retryErr := g.client.GenerateImage(ctx, simplified)
	if retryErr != nil {
		return nil, fmt.Errorf("retry after %v: %w", err, retryErr)
	}
	return asset, nil
}

func classifyDashScopeError(provider ProviderID, err error) error {
	if errors.Is(err, dashscope.ErrMissingAPIKey) {
		return domain.NewProviderError(domain.ErrProviderUnavailable, string(provider), err)
	}
	var apiErr *dashscope.APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == 401 || apiErr.StatusCode == 403) {
		return domain.NewProviderError(domain.ErrProviderUnavailable, string(provider), err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return domain.NewProviderError(domain.ErrProviderTimeout, string(provider), err)
	}
	return domain.ClassifyProviderError(string(provider), err)
}
