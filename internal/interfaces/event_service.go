package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventDeskStateChanged carries a models.DeskView after a changed sync or local mutation
	EventDeskStateChanged EventType = "desk_state"

	// EventNotification carries a models.NotificationEvent for toast/sound/desktop delivery
	EventNotification EventType = "notification"

	// EventSyncFailed carries a SyncFailure when a sync or notification poll fails
	EventSyncFailed EventType = "sync_failed"

	// EventPauseChanged carries a bool with the new pause state
	EventPauseChanged EventType = "pause_changed"

	// EventOperatorChanged carries a *models.Operator (nil when cleared)
	EventOperatorChanged EventType = "operator_changed"

	// EventRankingUpdated carries a models.Ranking
	EventRankingUpdated EventType = "ranking_updated"
)

// SyncFailure describes a non-fatal failure surfaced to the rendering layer.
type SyncFailure struct {
	Task    string `json:"task"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
