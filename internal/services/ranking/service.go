package ranking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
)

// Service caches the store's course ranking between refreshes.
type Service struct {
	store  interfaces.RemoteStore
	events interfaces.EventService
	logger arbor.ILogger
	now    func() time.Time

	mu      sync.RWMutex
	current models.Ranking
}

// NewService creates an empty ranking cache
func NewService(store interfaces.RemoteStore, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		store:   store,
		events:  events,
		logger:  logger,
		now:     time.Now,
		current: models.Ranking{Entries: []models.CourseCount{}},
	}
}

// Refresh fetches the ranking. On failure the cached ranking is kept.
func (s *Service) Refresh(ctx context.Context) error {
	entries, err := s.store.GetRanking(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Error al actualizar ranking")
		if s.events != nil {
			failure := interfaces.SyncFailure{
				Task:    "ranking",
				Kind:    models.FailureKind(err),
				Message: fmt.Sprintf("Error al actualizar ranking: %v", err),
			}
			_ = s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventSyncFailed, Payload: failure})
		}
		return err
	}
	if entries == nil {
		entries = []models.CourseCount{}
	}

	ranking := models.Ranking{Entries: entries, FetchedAt: s.now()}
	s.mu.Lock()
	s.current = ranking
	s.mu.Unlock()

	s.logger.Debug().Int("entries", len(entries)).Msg("Ranking refreshed")

	if s.events != nil {
		if err := s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventRankingUpdated, Payload: ranking}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish ranking")
		}
	}
	return nil
}

// Current returns the cached ranking
func (s *Service) Current() models.Ranking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.current
	out.Entries = append([]models.CourseCount{}, s.current.Entries...)
	return out
}

// Top returns at most n entries of the cached ranking
func (s *Service) Top(n int) []models.CourseCount {
	entries := s.Current().Entries
	if n >= 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
