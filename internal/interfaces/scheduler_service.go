package interfaces

import (
	"context"
	"time"
)

// TaskStatus represents the current status of a periodic desk task
type TaskStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	IsRunning bool       `json:"is_running"`
	Runs      int64      `json:"runs"`
	Skipped   int64      `json:"skipped"` // Ticks that did no work because the desk was paused
	LastError string     `json:"last_error,omitempty"`
}

// SchedulerService runs the periodic sync, notification and ranking tasks
type SchedulerService interface {
	Resyncer

	// Start registers and starts the periodic tasks
	Start() error

	// Stop cancels all periodic tasks; safe to call more than once
	Stop()

	// Pause turns every tick body into a no-op without unregistering timers
	Pause()

	// Resume re-enables tick bodies
	Resume()

	// IsPaused reports the pause flag
	IsPaused() bool

	// TriggerNotifications runs a notification check out of band
	TriggerNotifications(ctx context.Context) error

	// GetAllTaskStatuses returns a snapshot of every task
	GetAllTaskStatuses() map[string]*TaskStatus
}

// RunObserver receives the outcome of every scheduled task run
type RunObserver interface {
	ObserveRun(task, result string, d time.Duration)
}
