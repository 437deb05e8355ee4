// -----------------------------------------------------------------------
// Metrics projector - counters and KPIs derived from the desk sets
// -----------------------------------------------------------------------

package metrics

import (
	"math"
	"time"

	"github.com/ternarybob/portico/internal/common"
	"github.com/ternarybob/portico/internal/models"
)

// Options carries the desk settings the projections depend on
type Options struct {
	Location       *time.Location
	MaxTimeWarning time.Duration
	TimelineOrder  string // "desc" (newest first) or "asc"
	HistoryLimit   int
}

// OptionsFromConfig reads the projection settings from the [desk] section
func OptionsFromConfig(config *common.Config) Options {
	return Options{
		Location:       config.Desk.Location(),
		MaxTimeWarning: config.Desk.MaxTimeWarningDuration(),
		TimelineOrder:  config.Desk.TimelineOrder,
		HistoryLimit:   config.Desk.HistoryLimit,
	}
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

// Project computes the desk metrics. It is pure: the same sets and instant give the same result.
func Project(active, historical []models.Withdrawal, now time.Time, opts Options) models.Metrics {
	m := models.Metrics{
		ActiveCount:  len(active),
		StatusCounts: make(map[models.Status]int, len(models.ActiveStatuses)+1),
		ComputedAt:   now,
	}
	for _, status := range models.ActiveStatuses {
		m.StatusCounts[status] = 0
	}
	m.StatusCounts[models.StatusCompleted] = len(historical)

	var total time.Duration
	timed := 0
	for _, w := range active {
		m.StatusCounts[w.Status]++
		if w.CreatedAt <= 0 {
			continue
		}
		elapsed := w.Elapsed(now)
		total += elapsed
		timed++
		if elapsed >= opts.MaxTimeWarning && w.Status != models.StatusNotified {
			m.OverdueCount++
		}
	}
	if timed > 0 {
		m.AverageElapsedMinutes = int(math.Round(total.Minutes() / float64(timed)))
	}

	for _, w := range historical {
		if isToday(w, now, opts.location()) {
			m.CompletedToday++
		}
	}

	return m
}

// isToday compares the creation date in loc; exit times carry no date of their own
func isToday(w models.Withdrawal, now time.Time, loc *time.Location) bool {
	if w.CreatedAt <= 0 {
		return false
	}
	created := w.Created(loc)
	today := now.In(loc)
	return created.Year() == today.Year() && created.YearDay() == today.YearDay()
}
