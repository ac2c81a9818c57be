package handlers

import (
	"fmt"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"storyboard/internal/domain"
	"storyboard/internal/providers/image"
	"storyboard/pkg/zip"
)

// Static serves stored images under the public /static prefix.
func (a *App) Static() http.Handler {
	return http.StripPrefix("/static/", http.FileServer(http.Dir(a.files.BasePath())))
}

// DownloadScriptImages streams every locally stored image of the script as a zip.
func (a *App) DownloadScriptImages(w http.ResponseWriter, r *http.Request) {
	scriptID := chi.URLParam(r, "id")
	script, err := a.scripts.GetScript(r.Context(), scriptID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	var assets []zip.Asset
	for _, chunk := range script.Chunks {
		images := []struct{ role, url string }{
			{image.RoleScene, chunk.Asset.ImageURL},
			{image.RoleSymbol, chunk.Asset.SecondaryImageURL},
		}
		for _, img := range images {
			role, url := img.role, img.url
			if url == "" {
				continue
			}
			key, ok := a.files.KeyFromURL(url)
			if !ok {
				continue
			}
			data, err := a.files.Read(r.Context(), key)
			if err != nil {
				a.logger.Warn().Err(err).
					Str("subject_id", scriptID).
					Str("chunk_id", chunk.ID).
					Msg("assets: stored image unreadable")
				continue
			}
			assets = append(assets, zip.Asset{
				Filename: fmt.Sprintf("%03d-%s%s", chunk.Position+1, role, path.Ext(key)),
				MIME:     http.DetectContentType(data),
				Data:     data,
			})
		}
	}
	if len(assets) == 0 {
		a.fail(w, r, fmt.Errorf("%w: script %s has no stored images", domain.ErrNotFound, scriptID))
		return
	}

	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=script-%s.zip", scriptID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
