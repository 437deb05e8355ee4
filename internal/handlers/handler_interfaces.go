package handlers

import (
	"context"

	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
)

// DeskViewer composes the observable desk view.
type DeskViewer interface {
	View() models.DeskView
	Monthly() models.MonthlySummary
}

// RecordFinder looks up a record in the active or historical set.
type RecordFinder interface {
	Find(createdAt int64) (models.Withdrawal, error)
}

// Lifecycle applies the mutating desk operations.
type Lifecycle interface {
	Register(ctx context.Context, req models.RegisterRequest) (models.Withdrawal, error)
	Advance(ctx context.Context, createdAt int64) (models.Withdrawal, error)
	Complete(ctx context.Context, createdAt int64, confirmer interfaces.Confirmer) (string, error)
	Discard(ctx context.Context, createdAt int64, confirmer interfaces.Confirmer) error
}

// SessionManager owns the current operator and the desk preferences.
type SessionManager interface {
	Select(ctx context.Context, operator models.Operator) error
	Clear(ctx context.Context) error
	Current() (models.Operator, bool)
	Roster(ctx context.Context) ([]models.Operator, error)
	RegisterOperator(ctx context.Context, operator models.Operator) error
	Theme(ctx context.Context) (string, error)
	SetTheme(ctx context.Context, theme string) error
}

// RankingProvider serves the cached ranking.
type RankingProvider interface {
	Current() models.Ranking
	Top(n int) []models.CourseCount
}

// ReportGenerator renders the desk report as PDF.
type ReportGenerator interface {
	Generate(ctx context.Context) ([]byte, error)
}
