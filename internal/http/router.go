package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storyboard/internal/http/handlers"
	"storyboard/internal/infra"
	"storyboard/internal/middleware"
)

type RouterOptions struct {
	Logger             infra.Logger
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

func NewRouter(app *handlers.App, opts RouterOptions) stdhttp.Handler {
	limit := middleware.RateLimit(opts.RateLimitPerMinute, time.Minute)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSAllowedOrigins),
	)

	// Health
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/providers", app.ListProviders)
	r.Get("/v1/metrics", app.MetricsSnapshot)
	r.Handle("/static/*", app.Static())

	r.Route("/v1/scripts", func(r chi.Router) {
		r.With(limit).Post("/", app.CreateScript)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.GetScript)
			r.Get("/images.zip", app.DownloadScriptImages)
			r.With(limit).
				Post("/chunks/{chunkId}/image", app.GenerateChunkImage)

			r.Route("/batch", func(r chi.Router) {
				r.With(limit).Post("/", app.CreateBatch)
				r.Get("/", app.BatchStatus)
				r.Post("/cancel", app.CancelBatch)
				r.Post("/resume", app.ResumeBatch)
				r.Post("/clear", app.ClearJobs)
				r.Get("/jobs", app.ListJobs)
			})
		})
	})

	return r
}
