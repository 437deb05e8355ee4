package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/models"
)

// SessionHandler manages the current operator, the roster and the theme preference.
type SessionHandler struct {
	session SessionManager
	logger  arbor.ILogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(session SessionManager, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{
		session: session,
		logger:  logger,
	}
}

// OperatorHandler handles GET (current), PUT/POST (select) and DELETE (clear) on /api/session/operator
func (h *SessionHandler) OperatorHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		operator, ok := h.session.Current()
		if !ok {
			WriteJSON(w, http.StatusOK, map[string]interface{}{"operator": nil})
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"operator": operator})

	case http.MethodPut, http.MethodPost:
		var operator models.Operator
		if !DecodeJSON(w, r, &operator) {
			return
		}
		if err := h.session.Select(r.Context(), operator); err != nil {
			WriteDomainError(w, err)
			return
		}
		current, _ := h.session.Current()
		h.logger.Info().Str("operator", current.Name).Msg("Operator selected")
		WriteJSON(w, http.StatusOK, map[string]interface{}{"operator": current})

	case http.MethodDelete:
		if err := h.session.Clear(r.Context()); err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteSuccess(w, "Sesión cerrada")

	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// RosterHandler handles GET (list) and POST (register) on /api/users
func (h *SessionHandler) RosterHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := h.session.Roster(r.Context())
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if users == nil {
			users = []models.Operator{}
		}
		WriteJSON(w, http.StatusOK, users)

	case http.MethodPost:
		var operator models.Operator
		if !DecodeJSON(w, r, &operator) {
			return
		}
		if err := h.session.RegisterOperator(r.Context(), operator); err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, operator)

	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// ThemeHandler handles GET and PUT on /api/preferences/theme
func (h *SessionHandler) ThemeHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		theme, err := h.session.Theme(r.Context())
		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to read theme preference")
		}
		WriteJSON(w, http.StatusOK, map[string]string{"theme": theme})

	case http.MethodPut, http.MethodPost:
		var req struct {
			Theme string `json:"theme"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}
		if err := h.session.SetTheme(r.Context(), req.Theme); err != nil {
			WriteDomainError(w, err)
			return
		}
		theme, _ := h.session.Theme(r.Context())
		WriteJSON(w, http.StatusOK, map[string]string{"theme": theme})

	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
