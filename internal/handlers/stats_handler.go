package handlers

import (
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/interfaces"
)

// StatsHandler serves the ranking cache and the store's monthly series
type StatsHandler struct {
	ranking RankingProvider
	store   interfaces.RemoteStore
	logger  arbor.ILogger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(ranking RankingProvider, store interfaces.RemoteStore, logger arbor.ILogger) *StatsHandler {
	return &StatsHandler{
		ranking: ranking,
		store:   store,
		logger:  logger,
	}
}

// RankingHandler returns the cached ranking; ?limit=N trims it
func (h *StatsHandler) RankingHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	ranking := h.ranking.Current()
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		ranking.Entries = h.ranking.Top(limit)
	}
	WriteJSON(w, http.StatusOK, ranking)
}

// MonthlyStatsHandler proxies the store's monthly series
func (h *StatsHandler) MonthlyStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := h.store.GetMonthlyStats(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to fetch monthly stats")
		WriteDomainError(w, err)
		return
	}
	if stats.Months == nil {
		stats.Months = []string{}
	}
	if stats.Values == nil {
		stats.Values = []float64{}
	}
	WriteJSON(w, http.StatusOK, stats)
}
