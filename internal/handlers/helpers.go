package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
)

// maxBodySize caps every JSON request body.
const maxBodySize = 64 << 10

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteDomainError maps a desk error to its HTTP status and writes it with its kind.
func WriteDomainError(w http.ResponseWriter, err error) error {
	message := err.Error()
	if remote := models.RemoteMessage(err); remote != "" {
		message = remote
	}
	return WriteJSON(w, StatusFor(err), map[string]string{
		"status": "error",
		"kind":   models.FailureKind(err),
		"error":  message,
	})
}

// StatusFor returns the HTTP status for a desk error.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrConfirmationDeclined):
		return http.StatusConflict
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrRecordNotFound), errors.Is(err, interfaces.ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrTransitionFailed), errors.Is(err, models.ErrNetworkFailure),
		errors.Is(err, models.ErrMalformedSnapshot):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrRemoteRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON reads a bounded JSON body into dst. An empty body leaves dst untouched.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// PathID extracts the creation timestamp from paths like /api/withdrawals/{createdAt}/advance.
func PathID(path, prefix string) (int64, string, bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return 0, "", false
	}
	idPart, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, action, true
}
