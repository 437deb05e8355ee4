// -----------------------------------------------------------------------
// Desk - observable desk view composed from state and projections
// -----------------------------------------------------------------------

package desk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
	"github.com/ternarybob/portico/internal/services/metrics"
	"github.com/ternarybob/portico/internal/services/reconcile"
)

// MetricsObserver receives every projection published with a view
type MetricsObserver interface {
	ObserveMetrics(m models.Metrics)
}

// Service builds DeskView and republishes it whenever the state, the pause flag
// or the operator changes.
type Service struct {
	state    *reconcile.State
	events   interfaces.EventService
	observer MetricsObserver
	opts     metrics.Options
	logger   arbor.ILogger
	now      func() time.Time

	mu       sync.RWMutex
	paused   bool
	operator *models.Operator
}

// NewService creates a desk view service. observer may be nil.
func NewService(state *reconcile.State, events interfaces.EventService, observer MetricsObserver, opts metrics.Options, logger arbor.ILogger) *Service {
	return &Service{
		state:    state,
		events:   events,
		observer: observer,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Start hooks the service to state changes and to pause and operator events.
func (s *Service) Start() error {
	s.state.OnChange(s.publish)

	if err := s.events.Subscribe(interfaces.EventPauseChanged, func(ctx context.Context, event interfaces.Event) error {
		paused, ok := event.Payload.(bool)
		if !ok {
			return fmt.Errorf("unexpected pause payload %T", event.Payload)
		}
		s.mu.Lock()
		s.paused = paused
		s.mu.Unlock()
		s.publish()
		return nil
	}); err != nil {
		return err
	}

	return s.events.Subscribe(interfaces.EventOperatorChanged, func(ctx context.Context, event interfaces.Event) error {
		operator, _ := event.Payload.(*models.Operator)
		s.mu.Lock()
		if operator == nil {
			s.operator = nil
		} else {
			copied := *operator
			s.operator = &copied
		}
		s.mu.Unlock()
		s.publish()
		return nil
	})
}

// View composes the current desk view.
func (s *Service) View() models.DeskView {
	snapshot := s.state.Snapshot()
	now := s.now()

	history, total := metrics.History(snapshot.Historical, s.opts.HistoryLimit)
	view := models.DeskView{
		Generation:     snapshot.Generation,
		Active:         metrics.ActiveCards(snapshot.Active, now, s.opts),
		History:        history,
		HistoryTotal:   total,
		Metrics:        metrics.Project(snapshot.Active, snapshot.Historical, now, s.opts),
		Timeline:       metrics.Timeline(snapshot.Active, snapshot.Historical, now, s.opts),
		WithdrawnToday: metrics.WithdrawnToday(snapshot.Historical, now, s.opts),
		LastSync:       snapshot.LastSync,
		Fingerprint:    string(snapshot.Token),
	}

	s.mu.RLock()
	view.Paused = s.paused
	if s.operator != nil {
		operator := *s.operator
		view.Operator = &operator
	}
	s.mu.RUnlock()

	return view
}

// Monthly summarises this month's completions from the local history.
func (s *Service) Monthly() models.MonthlySummary {
	return metrics.Monthly(s.state.Snapshot().Historical, s.now(), s.opts)
}

func (s *Service) publish() {
	view := s.View()
	if s.observer != nil {
		s.observer.ObserveMetrics(view.Metrics)
	}

	event := interfaces.Event{Type: interfaces.EventDeskStateChanged, Payload: view}
	if err := s.events.Publish(context.Background(), event); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish desk state")
	}
}
