package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/common"
	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
)

// Differ surfaces creations and completions logged after its cursor.
// The cursor never moves backwards and only moves after a delivered batch.
type Differ struct {
	store  interfaces.RemoteStore
	events interfaces.EventService
	resync interfaces.Resyncer
	logger arbor.ILogger
	now    func() time.Time

	mu     sync.Mutex // serialises Process
	cursor int64
}

// NewDiffer creates a differ whose cursor starts at the session start,
// or at zero when sync.notifications_from_start replays the whole log.
func NewDiffer(store interfaces.RemoteStore, events interfaces.EventService, config *common.Config, logger arbor.ILogger) *Differ {
	d := &Differ{
		store:  store,
		events: events,
		logger: logger,
		now:    time.Now,
	}
	if !config.Sync.NotificationsFromStart {
		d.cursor = d.now().UnixMilli()
	}
	return d
}

// SetResyncer sets the component a delivered batch forces a sync through.
func (d *Differ) SetResyncer(resync interfaces.Resyncer) {
	d.resync = resync
}

// Cursor returns the current cursor in ms since epoch.
func (d *Differ) Cursor() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

// Check fetches the items newer than the cursor without delivering them.
func (d *Differ) Check(ctx context.Context) (*models.NotificationBatch, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.check(ctx, d.now())
}

func (d *Differ) check(ctx context.Context, polledAt time.Time) (*models.NotificationBatch, error) {
	batch, err := d.store.CheckNotifications(ctx, d.cursor)
	if err != nil {
		return nil, err
	}

	// The store filters by lastCheck. A completion carries its record's creation
	// timestamp, so only creations can be re-checked against the cursor.
	fresh := make([]models.NotificationEvent, 0, len(batch.Items))
	for _, item := range batch.Items {
		if item.Kind == models.NotificationCompleted || item.Timestamp > d.cursor {
			fresh = append(fresh, item)
		}
	}

	return &models.NotificationBatch{
		HasNew:   batch.HasNew && len(fresh) > 0,
		Items:    fresh,
		PolledAt: polledAt,
	}, nil
}

// Process checks, delivers every new item to subscribers in order, advances the cursor to
// the poll start and forces a sync. It returns the number of delivered items.
func (d *Differ) Process(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	polledAt := d.now()
	batch, err := d.check(ctx, polledAt)
	if err != nil {
		d.fail(ctx, err)
		return 0, err
	}
	if !batch.HasNew {
		return 0, nil
	}

	for _, item := range batch.Items {
		if d.events == nil {
			continue
		}
		event := interfaces.Event{Type: interfaces.EventNotification, Payload: item}
		if err := d.events.PublishSync(ctx, event); err != nil {
			d.logger.Warn().Err(err).Str("name", item.Name).Msg("Notification handlers failed")
		}
	}

	if next := polledAt.UnixMilli(); next > d.cursor {
		d.cursor = next
	}

	d.logger.Debug().
		Int("delivered", len(batch.Items)).
		Int64("cursor", d.cursor).
		Msg("Notifications processed")

	if d.resync != nil {
		if err := d.resync.TriggerSync(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Sync after notifications failed")
		}
	}

	return len(batch.Items), nil
}

func (d *Differ) fail(ctx context.Context, err error) {
	d.logger.Warn().Err(err).Int64("cursor", d.cursor).Msg("Notification check failed")

	if d.events == nil {
		return
	}
	failure := interfaces.SyncFailure{
		Task:    "notifications",
		Kind:    models.FailureKind(err),
		Message: fmt.Sprintf("Error al consultar notificaciones: %v", err),
	}
	if pubErr := d.events.Publish(ctx, interfaces.Event{Type: interfaces.EventSyncFailed, Payload: failure}); pubErr != nil {
		d.logger.Warn().Err(pubErr).Msg("Failed to publish notification failure")
	}
}
