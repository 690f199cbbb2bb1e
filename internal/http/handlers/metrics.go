package handlers

import (
	"net/http"
	"time"
)

// Metrics reports lifecycle counters and worker pool occupancy.
func (a *App) Metrics(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"jobs":           a.Jobs.Stats(),
		"pool":           a.Jobs.PoolStats(),
		"uptime_seconds": int64(time.Since(a.StartedAt).Seconds()),
	})
}
