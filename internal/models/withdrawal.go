// -----------------------------------------------------------------------
// Withdrawal - One student pickup episode at the front desk
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the progress of an active withdrawal toward completion.
// Values are the literal strings stored in the remote spreadsheet.
type Status string

const (
	StatusWaiting   Status = "ESPERA"
	StatusSearching Status = "EN BUSCA"
	StatusNotified  Status = "AVISADO"

	// StatusCompleted is never stored on a record; it labels the historical set in counts and reports.
	StatusCompleted Status = "FINALIZADO"
)

// ActiveStatuses lists the statuses an active record may hold, in lifecycle order.
var ActiveStatuses = []Status{StatusWaiting, StatusSearching, StatusNotified}

// UnattributedResponsible is recorded when no operator performed the last action.
const UnattributedResponsible = "Sistema"

// NormalizeStatus maps a raw stored value to an active status.
// Unknown or missing values are treated as Waiting.
func NormalizeStatus(raw string) Status {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusSearching:
		return StatusSearching
	case StatusNotified:
		return StatusNotified
	default:
		return StatusWaiting
	}
}

// Label returns the display label for the status.
func (s Status) Label() string {
	switch s {
	case StatusWaiting:
		return "En espera"
	case StatusSearching:
		return "En búsqueda"
	case StatusNotified:
		return "Avisado"
	case StatusCompleted:
		return "Finalizado"
	default:
		return string(s)
	}
}

// Progress returns the completion percentage shown for an active status.
func (s Status) Progress() int {
	switch s {
	case StatusSearching:
		return 66
	case StatusNotified:
		return 100
	default:
		return 33
	}
}

// Withdrawal represents one pickup episode as held by the desk.
type Withdrawal struct {
	ID          string `json:"id"`          // Store-assigned identity (blank for optimistic local records)
	Name        string `json:"name"`        // Student name
	Course      string `json:"course"`      // Course, e.g. "3A"
	Reason      string `json:"reason"`      // Withdrawal reason
	CreatedAt   int64  `json:"created_at"`  // Creation instant in ms since epoch (de facto key)
	Status      Status `json:"status"`      // Active status (ignored once historical)
	ExitTime    string `json:"exit_time"`   // Wall-clock exit time "HH:MM"; non-empty means historical
	Responsible string `json:"responsible"` // Operator who performed the last mutating action
	Pending     bool   `json:"pending"`     // True while an optimistic local insert awaits confirmation
}

// IsHistorical reports whether the record has a recorded exit time.
func (w Withdrawal) IsHistorical() bool {
	return strings.TrimSpace(w.ExitTime) != ""
}

// Key returns the creation timestamp as the decimal string the store uses to address records.
func (w Withdrawal) Key() string {
	return strconv.FormatInt(w.CreatedAt, 10)
}

// Created returns the creation instant in the given location.
func (w Withdrawal) Created(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(w.CreatedAt).In(loc)
}

// Elapsed returns the time since creation, or zero when no creation time is known.
func (w Withdrawal) Elapsed(now time.Time) time.Duration {
	if w.CreatedAt <= 0 {
		return 0
	}
	d := now.Sub(time.UnixMilli(w.CreatedAt))
	if d < 0 {
		return 0
	}
	return d
}

// ElapsedText formats the elapsed time as "N min" below an hour and "Hh Mm" above.
func ElapsedText(d time.Duration) string {
	minutes := int(d / time.Minute)
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// ExitClock parses the "HH:MM" exit time. ok is false when it cannot be parsed.
func (w Withdrawal) ExitClock() (hour, minute int, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(w.ExitTime), ":", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// Duration returns the time between creation and exit, assuming both fall on the creation date.
func (w Withdrawal) Duration(loc *time.Location) (time.Duration, bool) {
	if w.CreatedAt <= 0 {
		return 0, false
	}
	h, m, ok := w.ExitClock()
	if !ok {
		return 0, false
	}
	entry := w.Created(loc)
	exit := time.Date(entry.Year(), entry.Month(), entry.Day(), h, m, 0, 0, entry.Location())
	return exit.Sub(entry), true
}

// RegisterRequest carries the attributes staff enter for a new withdrawal.
type RegisterRequest struct {
	Name   string `json:"name" validate:"required,min=3"`
	Course string `json:"course" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// Normalize trims surrounding whitespace from all fields.
func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Course = strings.TrimSpace(r.Course)
	r.Reason = strings.TrimSpace(r.Reason)
}
