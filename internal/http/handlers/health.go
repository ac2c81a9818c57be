package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if a.batch != nil {
		body["worker_id"] = a.batch.WorkerID()
	}
	a.json(w, http.StatusOK, body)
}
