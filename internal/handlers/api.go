package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/common"
)

// SyncClock reports when the desk last synced successfully.
type SyncClock interface {
	LastSync() time.Time
}

type APIHandler struct {
	clock  SyncClock
	logger arbor.ILogger
}

func NewAPIHandler(clock SyncClock, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		clock:  clock,
		logger: logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.Version,
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	body := map[string]interface{}{
		"status":     "ok",
		"goroutines": common.GetGoroutineCount(),
	}
	if h.clock != nil {
		if last := h.clock.LastSync(); !last.IsZero() {
			body["last_sync"] = last
		}
	}
	WriteJSON(w, http.StatusOK, body)
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
