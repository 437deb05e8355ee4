package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
	"github.com/ternarybob/portico/internal/services/desk"
)

const withdrawalsPrefix = "/api/withdrawals"

// DeskHandler serves the desk view and the withdrawal mutations.
type DeskHandler struct {
	desk      DeskViewer
	records   RecordFinder
	lifecycle Lifecycle
	logger    arbor.ILogger
}

// NewDeskHandler creates a new desk handler
func NewDeskHandler(view DeskViewer, records RecordFinder, lifecycle Lifecycle, logger arbor.ILogger) *DeskHandler {
	return &DeskHandler{
		desk:      view,
		records:   records,
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// confirmRequest is the body of complete and discard. The HTTP caller answers the
// confirmation gate up front; a missing or false flag declines it.
type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

func (c confirmRequest) confirmer() interfaces.Confirmer {
	return interfaces.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
		return c.Confirm, nil
	})
}

// ViewHandler returns the full desk view
func (h *DeskHandler) ViewHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.desk.View())
}

// MonthlyHandler returns this month's summary computed from local history
func (h *DeskHandler) MonthlyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.desk.Monthly())
}

// RegisterHandler registers a new withdrawal
func (h *DeskHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.RegisterRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	record, err := h.lifecycle.Register(r.Context(), req)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, record)
}

// WithdrawalRoutes dispatches /api/withdrawals/{createdAt}/{action}
func (h *DeskHandler) WithdrawalRoutes(w http.ResponseWriter, r *http.Request) {
	createdAt, action, ok := PathID(r.URL.Path, withdrawalsPrefix)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid withdrawal id")
		return
	}

	switch action {
	case "":
		h.getWithdrawal(w, r, createdAt)
	case "advance":
		h.advance(w, r, createdAt)
	case "complete":
		h.complete(w, r, createdAt)
	case "discard":
		h.discard(w, r, createdAt)
	case "share":
		h.share(w, r, createdAt)
	default:
		WriteError(w, http.StatusNotFound, "Unknown action: "+action)
	}
}

func (h *DeskHandler) getWithdrawal(w http.ResponseWriter, r *http.Request, createdAt int64) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	record, err := h.records.Find(createdAt)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

func (h *DeskHandler) advance(w http.ResponseWriter, r *http.Request, createdAt int64) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	record, err := h.lifecycle.Advance(r.Context(), createdAt)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

func (h *DeskHandler) complete(w http.ResponseWriter, r *http.Request, createdAt int64) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req confirmRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	exitTime, err := h.lifecycle.Complete(r.Context(), createdAt, req.confirmer())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "success",
		"created_at": createdAt,
		"exit_time":  exitTime,
	})
}

func (h *DeskHandler) discard(w http.ResponseWriter, r *http.Request, createdAt int64) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req confirmRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.lifecycle.Discard(r.Context(), createdAt, req.confirmer()); err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteSuccess(w, "Registro eliminado")
}

func (h *DeskHandler) share(w http.ResponseWriter, r *http.Request, createdAt int64) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	record, err := h.records.Find(createdAt)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"message": desk.ShareMessage(record),
		"url":     desk.ShareLink(record),
	})
}
