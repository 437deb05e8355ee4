package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
)

// NewLoggerSubscriber creates an event handler that writes desk events to the log
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		switch payload := event.Payload.(type) {
		case models.NotificationEvent:
			logger.Info().
				Str("kind", string(payload.Kind)).
				Str("name", payload.Name).
				Str("course", payload.Course).
				Str("exit_time", payload.ExitTime).
				Msg("Withdrawal notification")
		case interfaces.SyncFailure:
			logger.Warn().
				Str("task", payload.Task).
				Str("kind", payload.Kind).
				Str("message", payload.Message).
				Msg("Desk task failed")
		case bool:
			logger.Info().
				Str("event_type", string(event.Type)).
				Bool("value", payload).
				Msg("Desk flag changed")
		case *models.Operator:
			name := ""
			if payload != nil {
				name = payload.Name
			}
			logger.Info().Str("operator", name).Msg("Operator changed")
		default:
			logger.Debug().
				Str("event_type", string(event.Type)).
				Msg("Event published")
		}
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to the low-frequency desk events.
// Desk state snapshots are not logged.
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventNotification,
		interfaces.EventSyncFailed,
		interfaces.EventPauseChanged,
		interfaces.EventOperatorChanged,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to desk events")

	return nil
}
