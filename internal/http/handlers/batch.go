package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"storyboard/internal/batch"
	"storyboard/internal/domain"
)

type batchConfigRequest struct {
	Provider    string            `json:"provider"`
	Style       string            `json:"style"`
	Color       string            `json:"color"`
	Quality     string            `json:"quality"`
	AspectRatio string            `json:"aspectRatio"`
	Options     map[string]string `json:"options"`
}

func (c batchConfigRequest) config() domain.JobConfig {
	return domain.JobConfig{
		Provider:    c.Provider,
		Style:       c.Style,
		Color:       c.Color,
		Quality:     c.Quality,
		AspectRatio: c.AspectRatio,
		Options:     c.Options,
	}
}

type createBatchResponse struct {
	JobID       string `json:"jobId"`
	TotalChunks int    `json:"totalChunks"`
	Status      string `json:"status"`
	Created     bool   `json:"created"`
}

type jobItemResponse struct {
	Position      int        `json:"position"`
	ChunkID       string     `json:"chunkId"`
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	ProcessedAt   *time.Time `json:"processedAt,omitempty"`
	ImageURL      string     `json:"imageUrl,omitempty"`
}

type jobResponse struct {
	batch.Status
	Config domain.JobConfig  `json:"config"`
	Items  []jobItemResponse `json:"items"`
}

func toJobResponse(job *domain.Job) jobResponse {
	items := make([]jobItemResponse, 0, len(job.Items))
	for _, item := range job.Items {
		items = append(items, jobItemResponse{
			Position:      item.Position,
			ChunkID:       item.ChunkID,
			Status:        string(item.Status),
			Error:         item.Error,
			Attempts:      item.Attempts,
			NextAttemptAt: item.NextAttemptAt,
			ProcessedAt:   item.ProcessedAt,
			ImageURL:      item.Result.ImageURL,
		})
	}
	return jobResponse{Status: batch.StatusFromJob(job), Config: job.Config, Items: items}
}

// CreateBatch enqueues a job for every chunk of the script without an image.
// An already active job is returned unchanged with 200 instead of 202.
func (a *App) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchConfigRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	job, created, err := a.batch.CreateBatchJob(r.Context(), chi.URLParam(r, "id"), req.config())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	code := http.StatusAccepted
	if !created {
		code = http.StatusOK
	}
	a.json(w, code, createBatchResponse{
		JobID:       job.ID,
		TotalChunks: job.Progress.Total,
		Status:      string(job.Status),
		Created:     created,
	})
}

func (a *App) BatchStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.batch.JobStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, status)
}

func (a *App) CancelBatch(w http.ResponseWriter, r *http.Request) {
	cancelled, err := a.batch.CancelBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (a *App) ResumeBatch(w http.ResponseWriter, r *http.Request) {
	job, err := a.batch.ResumeBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, batch.StatusFromJob(job))
}

func (a *App) ClearJobs(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.batch.ClearJobs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.batch.ListJobs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, toJobResponse(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// GenerateChunkImage illustrates one chunk synchronously, outside any batch job.
func (a *App) GenerateChunkImage(w http.ResponseWriter, r *http.Request) {
	var req batchConfigRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	chunk, err := a.batch.GenerateChunk(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "chunkId"), req.config())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toChunkResponse(*chunk))
}
