package image

import (
	"errors"
	"fmt"

	"storyboard/internal/domain"
)

// Registry resolves provider ids to configured generators.
type Registry struct {
	generators map[ProviderID]Generator
}

// NewRegistry indexes the given generators by their id. Later duplicates win.
func NewRegistry(generators ...Generator) *Registry {
	r := &Registry{generators: make(map[ProviderID]Generator, len(generators))}
	for _, g := range generators {
		if g == nil {
			continue
		}
		r.generators[g.ID()] = g
	}
	return r
}

// Lookup returns the generator for name, or a ProviderError of kind
// ErrProviderUnavailable when the id is unknown or the backend cannot serve requests.
func (r *Registry) Lookup(name string) (Generator, error) {
	id, ok := ParseProviderID(name)
	if !ok {
		return nil, domain.NewProviderError(domain.ErrProviderUnavailable, name, fmt.Errorf("unknown provider %q", name))
	}
	g, ok := r.generators[id]
	if !ok {
		return nil, domain.NewProviderError(domain.ErrProviderUnavailable, string(id), errors.New("provider not configured"))
	}
	if !g.Available() {
		return nil, domain.NewProviderError(domain.ErrProviderUnavailable, string(id), errors.New("credentials missing"))
	}
	return g, nil
}

// ProviderInfo describes one catalogue entry.
type ProviderInfo struct {
	ID        ProviderID `json:"id"`
	Mode      string     `json:"mode"`
	Available bool       `json:"available"`
}

// Catalog lists every supported provider with its availability.
func (r *Registry) Catalog() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(Providers))
	for _, id := range Providers {
		info := ProviderInfo{ID: id, Mode: id.Mode()}
		if g, ok := r.generators[id]; ok {
			info.Available = g.Available()
		}
		out = append(out, info)
	}
	return out
}
