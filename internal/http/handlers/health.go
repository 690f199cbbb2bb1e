package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]bool{"ok": true})
}

// Root describes the service and its endpoints.
func (a *App) Root(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"service": ServiceName,
		"status":  "running",
		"version": Version,
		"endpoints": map[string]string{
			"upload":   "POST /api/upload",
			"process":  "POST /api/process/{jobId}",
			"status":   "GET /api/job/{jobId}",
			"download": "GET /api/download/{jobId}",
			"webhook":  "POST /api/webhook/mailgun",
			"metrics":  "GET /metrics",
			"docs":     "GET /docs",
		},
	})
}
