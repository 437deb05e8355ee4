package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/interfaces"
)

const preferencesPrefix = "/api/preferences/"

// PreferenceStore defines the methods needed from the KV service
type PreferenceStore interface {
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]interfaces.KeyValuePair, error)
}

// KVHandler exposes the persisted desk preferences for inspection and reset
type KVHandler struct {
	prefs  PreferenceStore
	logger arbor.ILogger
}

// NewKVHandler creates a new preferences handler
func NewKVHandler(prefs PreferenceStore, logger arbor.ILogger) *KVHandler {
	return &KVHandler{
		prefs:  prefs,
		logger: logger,
	}
}

// ListKVHandler handles GET /api/preferences - lists every persisted preference, newest first
func (h *KVHandler) ListKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	pairs, err := h.prefs.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list preferences")
		WriteError(w, http.StatusInternalServerError, "Failed to list preferences")
		return
	}
	if pairs == nil {
		pairs = []interfaces.KeyValuePair{}
	}

	h.logger.Debug().Int("count", len(pairs)).Msg("Listed preferences")
	WriteJSON(w, http.StatusOK, pairs)
}

// KeyHandler handles GET and DELETE on /api/preferences/{key}
func (h *KVHandler) KeyHandler(w http.ResponseWriter, r *http.Request) {
	encodedKey := r.URL.Path[len(preferencesPrefix):]
	key, err := url.QueryUnescape(encodedKey)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid key encoding")
		return
	}
	if key == "" {
		WriteError(w, http.StatusBadRequest, "Missing key parameter")
		return
	}

	switch r.Method {
	case http.MethodGet:
		value, err := h.prefs.Get(r.Context(), key)
		if err != nil {
			if errors.Is(err, interfaces.ErrKeyNotFound) {
				WriteError(w, http.StatusNotFound, "Key not found")
				return
			}
			h.logger.Error().Err(err).Str("key", key).Msg("Failed to get preference")
			WriteError(w, http.StatusInternalServerError, "Failed to retrieve preference")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})

	case http.MethodDelete:
		if err := h.prefs.Delete(r.Context(), key); err != nil {
			h.logger.Error().Err(err).Str("key", key).Msg("Failed to delete preference")
			WriteError(w, http.StatusInternalServerError, "Failed to delete preference")
			return
		}
		h.logger.Debug().Str("key", key).Msg("Deleted preference")
		WriteSuccess(w, "Preference reset")

	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
