// Package handlers exposes scripts and batch illustration jobs over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"storyboard/internal/batch"
	"storyboard/internal/domain"
	"storyboard/internal/infra"
	"storyboard/internal/middleware"
	"storyboard/internal/providers/image"
	"storyboard/internal/providers/prompt"
	"storyboard/internal/storage"
)

const maxBodyBytes = 1 << 20

// Catalog lists the image providers and their availability.
type Catalog interface {
	Catalog() []image.ProviderInfo
}

// MetricsReader is satisfied by the OpenTelemetry SDK manual reader.
type MetricsReader interface {
	Collect(ctx context.Context, rm *metricdata.ResourceMetrics) error
}

type Deps struct {
	Batch           *batch.Manager
	Scripts         domain.ScriptRepository
	Chunker         prompt.Chunker
	Catalog         Catalog
	Files           *storage.FileStore
	Metrics         MetricsReader
	DefaultProvider string
	Logger          infra.Logger
}

type App struct {
	batch           *batch.Manager
	scripts         domain.ScriptRepository
	chunker         prompt.Chunker
	catalog         Catalog
	files           *storage.FileStore
	metrics         MetricsReader
	defaultProvider string
	logger          infra.Logger
}

func NewApp(deps Deps) *App {
	return &App{
		batch:           deps.Batch,
		scripts:         deps.Scripts,
		chunker:         deps.Chunker,
		catalog:         deps.Catalog,
		files:           deps.Files,
		metrics:         deps.Metrics,
		defaultProvider: deps.DefaultProvider,
		logger:          deps.Logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}

// fail maps domain errors onto the HTTP error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout {
		a.logger.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("http: request failed")
		message = "internal error"
	}
	a.error(w, status, code, message)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSubjectNotFound):
		return http.StatusNotFound, "subject_not_found"
	case errors.Is(err, domain.ErrChunkMissing):
		return http.StatusNotFound, "chunk_missing"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrNoWorkRemaining):
		return http.StatusConflict, "no_work_remaining"
	case errors.Is(err, domain.ErrDuplicateOperation):
		return http.StatusConflict, "duplicate_operation"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusUnprocessableEntity, "provider_unavailable"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrProviderTimeout):
		return http.StatusGatewayTimeout, "provider_timeout"
	case errors.Is(err, domain.ErrProviderFailure):
		return http.StatusBadGateway, "provider_failure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// decode reads an optional JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}
