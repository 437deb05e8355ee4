package models

import "time"

// NotificationKind distinguishes the events surfaced by the notification poll.
type NotificationKind string

const (
	NotificationCreated   NotificationKind = "created"
	NotificationCompleted NotificationKind = "completed"
)

// ParseNotificationKind maps the store's "type" field. The store reports creations as "new".
func ParseNotificationKind(raw string) (NotificationKind, bool) {
	switch raw {
	case "new", "created":
		return NotificationCreated, true
	case "completed":
		return NotificationCompleted, true
	default:
		return "", false
	}
}

// NotificationEvent is one newly appeared creation or completion.
type NotificationEvent struct {
	Kind      NotificationKind `json:"kind"`
	Name      string           `json:"name"`
	Course    string           `json:"course"`
	Reason    string           `json:"reason"`
	Timestamp int64            `json:"timestamp"` // ms since epoch
	ExitTime  string           `json:"exit_time,omitempty"`
}

// NotificationBatch is the result of one notification check.
type NotificationBatch struct {
	HasNew   bool                `json:"has_new"`
	Items    []NotificationEvent `json:"items"`
	PolledAt time.Time           `json:"polled_at"`
}

// Operator is a staff member that mutating actions are attributed to.
type Operator struct {
	Name string `json:"nombre" validate:"required,min=2"`
	Role string `json:"cargo"`
}

// IsZero reports whether no operator is set.
func (o Operator) IsZero() bool {
	return o.Name == ""
}
