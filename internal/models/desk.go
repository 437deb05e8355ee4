// -----------------------------------------------------------------------
// Desk - Derived views published to the rendering layer
// -----------------------------------------------------------------------

package models

import "time"

// Metrics are the counters and KPIs derived from the active and historical sets.
type Metrics struct {
	ActiveCount           int            `json:"active_count"`
	CompletedToday        int            `json:"completed_today"`
	AverageElapsedMinutes int            `json:"average_elapsed_minutes"`
	OverdueCount          int            `json:"overdue_count"`
	StatusCounts          map[Status]int `json:"status_counts"` // Includes StatusCompleted = |historical|
	ComputedAt            time.Time      `json:"computed_at"`
}

// TimelineAction describes what happened to a record, as shown on today's timeline.
type TimelineAction string

const (
	TimelineRegistered TimelineAction = "registered"
	TimelineSearching  TimelineAction = "searching"
	TimelineNotified   TimelineAction = "notified"
	TimelineWithdrawn  TimelineAction = "withdrawn"
)

// TimelineEntry is one of today's events.
type TimelineEntry struct {
	CreatedAt int64          `json:"created_at"`
	Time      string         `json:"time"` // "HH:MM" in the desk time zone
	Name      string         `json:"name"`
	Course    string         `json:"course"`
	Action    TimelineAction `json:"action"`
	ExitTime  string         `json:"exit_time,omitempty"`
}

// WithdrawnEntry is a record completed today.
type WithdrawnEntry struct {
	Name            string `json:"name"`
	Course          string `json:"course"`
	Reason          string `json:"reason"`
	EntryTime       string `json:"entry_time"`
	ExitTime        string `json:"exit_time"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"` // nil when exit time cannot be parsed
}

// ActiveCard is an active record decorated for display.
type ActiveCard struct {
	Withdrawal
	ElapsedMinutes int    `json:"elapsed_minutes"`
	ElapsedText    string `json:"elapsed_text"`
	Overdue        bool   `json:"overdue"`
	Progress       int    `json:"progress"`
}

// CourseCount pairs a label with a withdrawal count.
type CourseCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// MonthlySummary aggregates this month's completed withdrawals from local history.
type MonthlySummary struct {
	Month      string        `json:"month"` // "YYYY-MM"
	Total      int           `json:"total"`
	AvgPerDay  float64       `json:"avg_per_day"`
	TopCourses []CourseCount `json:"top_courses"`
}

// MonthlyStats is the store's monthly series, aligned by index.
type MonthlyStats struct {
	Months []string  `json:"meses"`
	Values []float64 `json:"valores"`
}

// Ranking is the store's pre-sorted ranking (descending by count).
type Ranking struct {
	Entries   []CourseCount `json:"entries"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// DeskView is the observable state a rendering layer subscribes to.
type DeskView struct {
	Generation     uint64           `json:"generation"` // Increments on every published change
	Active         []ActiveCard     `json:"active"`     // Newest first
	History        []Withdrawal     `json:"history"`    // Newest first, capped
	HistoryTotal   int              `json:"history_total"`
	Metrics        Metrics          `json:"metrics"`
	Timeline       []TimelineEntry  `json:"timeline"`
	WithdrawnToday []WithdrawnEntry `json:"withdrawn_today"`
	Operator       *Operator        `json:"operator,omitempty"`
	Paused         bool             `json:"paused"`
	LastSync       time.Time        `json:"last_sync"`
	Fingerprint    string           `json:"fingerprint"`
}
