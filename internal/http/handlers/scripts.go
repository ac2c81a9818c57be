package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storyboard/internal/domain"
)

type createScriptRequest struct {
	Title   string              `json:"title"`
	Content string              `json:"content"`
	Chunks  []domain.ChunkDraft `json:"chunks"`
}

type chunkResponse struct {
	ID                string         `json:"id"`
	Position          int            `json:"position"`
	Content           string         `json:"content"`
	StartTime         float64        `json:"startTime"`
	EndTime           float64        `json:"endTime"`
	ImageURL          string         `json:"imageUrl,omitempty"`
	SecondaryImageURL string         `json:"secondaryImageUrl,omitempty"`
	SceneDescription  string         `json:"sceneDescription,omitempty"`
	SymbolDescription string         `json:"symbolDescription,omitempty"`
	Provider          string         `json:"provider,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	GeneratedAt       *time.Time     `json:"generatedAt,omitempty"`
}

type scriptResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	Chunks    []chunkResponse `json:"chunks"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func toChunkResponse(c domain.Chunk) chunkResponse {
	return chunkResponse{
		ID:                c.ID,
		Position:          c.Position,
		Content:           c.Content,
		StartTime:         c.StartTime,
		EndTime:           c.EndTime,
		ImageURL:          c.Asset.ImageURL,
		SecondaryImageURL: c.Asset.SecondaryImageURL,
		SceneDescription:  c.Asset.SceneDescription,
		SymbolDescription: c.Asset.SymbolDescription,
		Provider:          c.Asset.Provider,
		Metadata:          c.Asset.Metadata,
		GeneratedAt:       c.Asset.GeneratedAt,
	}
}

func toScriptResponse(s *domain.Script) scriptResponse {
	chunks := make([]chunkResponse, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		chunks = append(chunks, toChunkResponse(c))
	}
	return scriptResponse{
		ID:        s.ID,
		Title:     s.Title,
		Content:   s.Content,
		Chunks:    chunks,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// CreateScript stores a script and its chunks. Chunks are derived from the
// content unless the caller supplies them.
func (a *App) CreateScript(w http.ResponseWriter, r *http.Request) {
	var req createScriptRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" && len(req.Chunks) == 0 {
		a.fail(w, r, fmt.Errorf("%w: content is required", domain.ErrInvalidInput))
		return
	}

	drafts := req.Chunks
	if len(drafts) == 0 {
		split, err := a.chunker.Split(r.Context(), req.Content)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		drafts = split
	}

	now := time.Now().UTC()
	script := &domain.Script{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, draft := range drafts {
		content := strings.TrimSpace(draft.Content)
		if content == "" {
			a.fail(w, r, fmt.Errorf("%w: chunk %d is empty", domain.ErrInvalidInput, i))
			return
		}
		script.Chunks = append(script.Chunks, domain.Chunk{
			ID:        uuid.NewString(),
			ScriptID:  script.ID,
			Position:  i,
			Content:   content,
			StartTime: draft.StartTime,
			EndTime:   draft.EndTime,
		})
	}
	if script.Content == "" {
		parts := make([]string, 0, len(script.Chunks))
		for _, c := range script.Chunks {
			parts = append(parts, c.Content)
		}
		script.Content = strings.Join(parts, "\n\n")
	}

	if err := a.scripts.CreateScript(r.Context(), script); err != nil {
		a.fail(w, r, err)
		return
	}
	a.logger.Info().
		Str("subject_id", script.ID).
		Int("chunks", len(script.Chunks)).
		Msg("scripts: created")
	a.json(w, http.StatusCreated, toScriptResponse(script))
}

func (a *App) GetScript(w http.ResponseWriter, r *http.Request) {
	script, err := a.scripts.GetScript(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toScriptResponse(script))
}
