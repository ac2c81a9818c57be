package handlers

import (
	"net/http"
)

func (a *App) ListProviders(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"default": a.defaultProvider,
		"items":   a.catalog.Catalog(),
	})
}
