package interfaces

import (
	"context"

	"github.com/ternarybob/portico/internal/models"
)

// RemoteStore is the spreadsheet-backed endpoint that owns withdrawal records.
// All mutations address a record by its creation timestamp.
type RemoteStore interface {
	// Read returns the raw JSON payload of the full record list
	Read(ctx context.Context) ([]byte, error)

	// CheckNotifications returns notifications newer than lastCheck (ms since epoch)
	CheckNotifications(ctx context.Context, lastCheck int64) (*models.NotificationBatch, error)

	// GetRanking returns the ranking pre-sorted descending by count
	GetRanking(ctx context.Context) ([]models.CourseCount, error)

	// GetMonthlyStats returns the monthly series
	GetMonthlyStats(ctx context.Context) (*models.MonthlyStats, error)

	// GetUsers returns the operator roster
	GetUsers(ctx context.Context) ([]models.Operator, error)

	// Add registers a new record
	Add(ctx context.Context, record models.Withdrawal) error

	// UpdateState sets the status of the record created at createdAt
	UpdateState(ctx context.Context, createdAt int64, status models.Status, responsible string) error

	// Finish records the exit time of the record created at createdAt
	Finish(ctx context.Context, createdAt int64, exitTime string, responsible string) error

	// Delete removes the record created at createdAt
	Delete(ctx context.Context, createdAt int64) error

	// SaveUser adds an operator to the roster
	SaveUser(ctx context.Context, operator models.Operator) error
}

// Confirmer is the interactive yes/no gate in front of completion and discard.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Resyncer forces an out-of-band sync after a mutation or notification batch.
type Resyncer interface {
	TriggerSync(ctx context.Context) error
}

// OperatorProvider resolves the operator that mutating actions are attributed to.
type OperatorProvider interface {
	RequireIdentity() (models.Operator, error)
}
