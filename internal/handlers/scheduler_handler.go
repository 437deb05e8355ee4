package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/interfaces"
)

// SchedulerHandler handles pause/resume, forced runs and task status
type SchedulerHandler struct {
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(scheduler interfaces.SchedulerService, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// PauseHandler pauses every periodic task
func (h *SchedulerHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	h.scheduler.Pause()
	WriteJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

// ResumeHandler resumes every periodic task
func (h *SchedulerHandler) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	h.scheduler.Resume()
	WriteJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

// SyncNowHandler forces a data sync. While paused the run is skipped and reported as such.
func (h *SchedulerHandler) SyncNowHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if h.scheduler.IsPaused() {
		WriteJSON(w, http.StatusConflict, map[string]interface{}{"status": "paused", "paused": true})
		return
	}
	if err := h.scheduler.TriggerSync(r.Context()); err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteSuccess(w, "Sincronizado")
}

// NotificationsNowHandler forces a notification check
func (h *SchedulerHandler) NotificationsNowHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if h.scheduler.IsPaused() {
		WriteJSON(w, http.StatusConflict, map[string]interface{}{"status": "paused", "paused": true})
		return
	}
	if err := h.scheduler.TriggerNotifications(r.Context()); err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteSuccess(w, "Notificaciones revisadas")
}

// StatusHandler returns the pause flag and every task status
func (h *SchedulerHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"paused": h.scheduler.IsPaused(),
		"tasks":  h.scheduler.GetAllTaskStatuses(),
	})
}
