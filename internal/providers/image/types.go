package image

import (
	"context"
	"strings"
)

// ProviderID names one of the supported image backends.
type ProviderID string

const (
	ProviderQwen      ProviderID = "qwen"
	ProviderWanx      ProviderID = "wanx"
	ProviderSynthetic ProviderID = "synthetic"
)

// Providers lists every supported backend in catalogue order.
var Providers = []ProviderID{ProviderQwen, ProviderWanx, ProviderSynthetic}

// ParseProviderID maps free-form input onto a supported provider.
func ParseProviderID(s string) (ProviderID, bool) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers {
		if id == known {
			return id, true
		}
	}
	return "", false
}

// Mode describes how the backend delivers results.
func (id ProviderID) Mode() string {
	switch id {
	case ProviderQwen:
		return "sync"
	case ProviderWanx:
		return "poll"
	default:
		return "local"
	}
}

// Image roles inside a two-stage illustration.
const (
	RoleScene  = "scene"
	RoleSymbol = "symbol"
)

// GenerateRequest is the normalized input passed to any image provider.
type GenerateRequest struct {
	Description string
	Role        string
	Style       string
	Color       string
	Quality     string
	AspectRatio string
	RequestID   string
	Options     map[string]string
}

// Asset is one rendered image. Data may be empty when the provider only returns a URL.
type Asset struct {
	URL      string
	Format   string
	Width    int
	Height   int
	Data     []byte
	Metadata map[string]any
}

// Generator is the contract implemented by every image provider.
type Generator interface {
	ID() ProviderID
	// Available reports whether the provider can serve requests, typically
	// whether credentials are configured.
	Available() bool
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
}
