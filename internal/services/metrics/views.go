package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/ternarybob/portico/internal/models"
)

const clockLayout = "15:04"

// topCoursesLimit is how many courses the monthly summary ranks
const topCoursesLimit = 5

// ActiveCards decorates the active set for display, newest first.
func ActiveCards(active []models.Withdrawal, now time.Time, opts Options) []models.ActiveCard {
	cards := make([]models.ActiveCard, 0, len(active))
	for _, w := range active {
		elapsed := w.Elapsed(now)
		cards = append(cards, models.ActiveCard{
			Withdrawal:     w,
			ElapsedMinutes: int(elapsed / time.Minute),
			ElapsedText:    models.ElapsedText(elapsed),
			Overdue:        w.CreatedAt > 0 && elapsed >= opts.MaxTimeWarning && w.Status != models.StatusNotified,
			Progress:       w.Status.Progress(),
		})
	}
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].CreatedAt > cards[j].CreatedAt })
	return cards
}

// History returns the historical set newest first, capped at limit, and its full size.
func History(historical []models.Withdrawal, limit int) ([]models.Withdrawal, int) {
	sorted := make([]models.Withdrawal, len(historical))
	copy(sorted, historical)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt > sorted[j].CreatedAt })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, len(historical)
}

// Timeline lists today's records with what last happened to each.
func Timeline(active, historical []models.Withdrawal, now time.Time, opts Options) []models.TimelineEntry {
	loc := opts.location()
	entries := make([]models.TimelineEntry, 0)

	add := func(w models.Withdrawal) {
		if !isToday(w, now, loc) {
			return
		}
		entry := models.TimelineEntry{
			CreatedAt: w.CreatedAt,
			Time:      w.Created(loc).Format(clockLayout),
			Name:      w.Name,
			Course:    w.Course,
			Action:    models.TimelineRegistered,
		}
		switch {
		case w.IsHistorical():
			entry.Action = models.TimelineWithdrawn
			entry.ExitTime = w.ExitTime
		case w.Status == models.StatusNotified:
			entry.Action = models.TimelineNotified
		case w.Status == models.StatusSearching:
			entry.Action = models.TimelineSearching
		}
		entries = append(entries, entry)
	}

	for _, w := range active {
		add(w)
	}
	for _, w := range historical {
		add(w)
	}

	ascending := opts.TimelineOrder == "asc"
	sort.SliceStable(entries, func(i, j int) bool {
		if ascending {
			return entries[i].CreatedAt < entries[j].CreatedAt
		}
		return entries[i].CreatedAt > entries[j].CreatedAt
	})
	return entries
}

// WithdrawnToday lists today's completions with the minutes between entry and exit.
func WithdrawnToday(historical []models.Withdrawal, now time.Time, opts Options) []models.WithdrawnEntry {
	loc := opts.location()
	out := make([]models.WithdrawnEntry, 0)
	for _, w := range historical {
		if !isToday(w, now, loc) {
			continue
		}
		entry := models.WithdrawnEntry{
			Name:      w.Name,
			Course:    w.Course,
			Reason:    w.Reason,
			EntryTime: w.Created(loc).Format(clockLayout),
			ExitTime:  w.ExitTime,
		}
		if d, ok := w.Duration(loc); ok {
			minutes := int(math.Round(d.Minutes()))
			entry.DurationMinutes = &minutes
		}
		out = append(out, entry)
	}
	return out
}

// Monthly summarises this month's completions from local history: total,
// average per calendar day of the month and the five busiest courses.
func Monthly(historical []models.Withdrawal, now time.Time, opts Options) models.MonthlySummary {
	loc := opts.location()
	today := now.In(loc)
	summary := models.MonthlySummary{
		Month:      today.Format("2006-01"),
		TopCourses: []models.CourseCount{},
	}

	counts := make(map[string]int)
	for _, w := range historical {
		if w.CreatedAt <= 0 {
			continue
		}
		created := w.Created(loc)
		if created.Year() != today.Year() || created.Month() != today.Month() {
			continue
		}
		summary.Total++
		counts[w.Course]++
	}

	days := daysIn(today.Year(), today.Month(), loc)
	summary.AvgPerDay = math.Round(float64(summary.Total)/float64(days)*10) / 10

	for course, n := range counts {
		summary.TopCourses = append(summary.TopCourses, models.CourseCount{Label: course, Count: n})
	}
	sort.Slice(summary.TopCourses, func(i, j int) bool {
		a, b := summary.TopCourses[i], summary.TopCourses[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Label < b.Label
	})
	if len(summary.TopCourses) > topCoursesLimit {
		summary.TopCourses = summary.TopCourses[:topCoursesLimit]
	}
	return summary
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
