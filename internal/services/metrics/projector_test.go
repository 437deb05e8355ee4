package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/portico/internal/models"
)

var testNow = time.Date(2024, 3, 12, 11, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{Location: time.UTC, MaxTimeWarning: 30 * time.Minute, TimelineOrder: "desc", HistoryLimit: 50}
}

func at(d time.Duration) int64 {
	return testNow.Add(-d).UnixMilli()
}

func TestProject_ElapsedAndOverdue(t *testing.T) {
	active := []models.Withdrawal{
		{Name: "A", CreatedAt: at(10 * time.Minute), Status: models.StatusWaiting},
		{Name: "B", CreatedAt: at(50 * time.Minute), Status: models.StatusWaiting},
	}

	m := Project(active, nil, testNow, testOptions())
	assert.Equal(t, 2, m.ActiveCount)
	assert.Equal(t, 30, m.AverageElapsedMinutes)
	assert.Equal(t, 1, m.OverdueCount)
	assert.Equal(t, 2, m.StatusCounts[models.StatusWaiting])
	assert.Equal(t, 0, m.StatusCounts[models.StatusCompleted])
}

func TestProject(t *testing.T) {
	yesterday := testNow.Add(-24 * time.Hour)

	tests := []struct {
		name       string
		active     []models.Withdrawal
		historical []models.Withdrawal
		check      func(t *testing.T, m models.Metrics)
	}{
		{
			name: "empty sets",
			check: func(t *testing.T, m models.Metrics) {
				assert.Equal(t, 0, m.ActiveCount)
				assert.Equal(t, 0, m.AverageElapsedMinutes)
				assert.Equal(t, 0, m.OverdueCount)
				assert.Len(t, m.StatusCounts, 4)
			},
		},
		{
			name: "notified records are never overdue",
			active: []models.Withdrawal{
				{CreatedAt: at(90 * time.Minute), Status: models.StatusNotified},
				{CreatedAt: at(30 * time.Minute), Status: models.StatusSearching},
			},
			check: func(t *testing.T, m models.Metrics) {
				assert.Equal(t, 1, m.OverdueCount)
				assert.Equal(t, 60, m.AverageElapsedMinutes)
				assert.Equal(t, 1, m.StatusCounts[models.StatusNotified])
				assert.Equal(t, 1, m.StatusCounts[models.StatusSearching])
			},
		},
		{
			name: "records without creation time are counted but not timed",
			active: []models.Withdrawal{
				{CreatedAt: 0, Status: models.StatusWaiting},
				{CreatedAt: at(20 * time.Minute), Status: models.StatusWaiting},
			},
			check: func(t *testing.T, m models.Metrics) {
				assert.Equal(t, 2, m.ActiveCount)
				assert.Equal(t, 20, m.AverageElapsedMinutes)
				assert.Equal(t, 0, m.OverdueCount)
			},
		},
		{
			name: "completed today uses creation date",
			historical: []models.Withdrawal{
				{CreatedAt: at(2 * time.Hour), ExitTime: "09:30"},
				{CreatedAt: yesterday.UnixMilli(), ExitTime: "11:00"},
				{CreatedAt: 0, ExitTime: "10:00"},
			},
			check: func(t *testing.T, m models.Metrics) {
				assert.Equal(t, 1, m.CompletedToday)
				assert.Equal(t, 3, m.StatusCounts[models.StatusCompleted])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Project(tt.active, tt.historical, testNow, testOptions()))
		})
	}
}

func TestProject_TimeZoneDecidesToday(t *testing.T) {
	santiago := time.FixedZone("CLT", -3*60*60)
	now := time.Date(2024, 3, 12, 1, 0, 0, 0, time.UTC) // 22:00 on the 11th in CLT
	record := models.Withdrawal{CreatedAt: time.Date(2024, 3, 11, 23, 0, 0, 0, time.UTC).UnixMilli(), ExitTime: "20:30"}

	opts := testOptions()
	assert.Equal(t, 0, Project(nil, []models.Withdrawal{record}, now, opts).CompletedToday)

	opts.Location = santiago
	assert.Equal(t, 1, Project(nil, []models.Withdrawal{record}, now, opts).CompletedToday)
}

func TestActiveCards(t *testing.T) {
	active := []models.Withdrawal{
		{Name: "old", CreatedAt: at(75 * time.Minute), Status: models.StatusSearching},
		{Name: "new", CreatedAt: at(5 * time.Minute), Status: models.StatusWaiting},
	}

	cards := ActiveCards(active, testNow, testOptions())
	require.Len(t, cards, 2)
	assert.Equal(t, "new", cards[0].Name)
	assert.Equal(t, "5 min", cards[0].ElapsedText)
	assert.Equal(t, 33, cards[0].Progress)
	assert.False(t, cards[0].Overdue)

	assert.Equal(t, "1h 15m", cards[1].ElapsedText)
	assert.Equal(t, 75, cards[1].ElapsedMinutes)
	assert.Equal(t, 66, cards[1].Progress)
	assert.True(t, cards[1].Overdue)
}

func TestHistory(t *testing.T) {
	historical := []models.Withdrawal{{CreatedAt: 1}, {CreatedAt: 3}, {CreatedAt: 2}}

	view, total := History(historical, 2)
	assert.Equal(t, 3, total)
	require.Len(t, view, 2)
	assert.Equal(t, int64(3), view[0].CreatedAt)
	assert.Equal(t, int64(2), view[1].CreatedAt)
	assert.Equal(t, int64(1), historical[0].CreatedAt)
}

func TestTimeline(t *testing.T) {
	active := []models.Withdrawal{
		{Name: "Ana", Course: "3A", CreatedAt: at(10 * time.Minute), Status: models.StatusNotified},
		{Name: "Bea", Course: "1B", CreatedAt: at(20 * time.Minute), Status: models.StatusSearching},
		{Name: "Cata", Course: "2C", CreatedAt: at(30 * time.Minute), Status: models.StatusWaiting},
		{Name: "ayer", CreatedAt: at(26 * time.Hour), Status: models.StatusWaiting},
	}
	historical := []models.Withdrawal{
		{Name: "Dani", Course: "4D", CreatedAt: at(60 * time.Minute), ExitTime: "10:20"},
	}

	entries := Timeline(active, historical, testNow, testOptions())
	require.Len(t, entries, 4)
	assert.Equal(t, []models.TimelineAction{
		models.TimelineNotified,
		models.TimelineSearching,
		models.TimelineRegistered,
		models.TimelineWithdrawn,
	}, []models.TimelineAction{entries[0].Action, entries[1].Action, entries[2].Action, entries[3].Action})
	assert.Equal(t, "10:50", entries[0].Time)
	assert.Equal(t, "10:20", entries[3].ExitTime)

	opts := testOptions()
	opts.TimelineOrder = "asc"
	entries = Timeline(active, historical, testNow, opts)
	assert.Equal(t, "Dani", entries[0].Name)
}

func TestWithdrawnToday(t *testing.T) {
	historical := []models.Withdrawal{
		{Name: "Ana", CreatedAt: time.Date(2024, 3, 12, 9, 15, 0, 0, time.UTC).UnixMilli(), ExitTime: "09:40"},
		{Name: "Bea", CreatedAt: time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC).UnixMilli(), ExitTime: "pronto"},
		{Name: "ayer", CreatedAt: time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC).UnixMilli(), ExitTime: "09:10"},
	}

	entries := WithdrawnToday(historical, testNow, testOptions())
	require.Len(t, entries, 2)
	assert.Equal(t, "09:15", entries[0].EntryTime)
	require.NotNil(t, entries[0].DurationMinutes)
	assert.Equal(t, 25, *entries[0].DurationMinutes)
	assert.Nil(t, entries[1].DurationMinutes)
}

func TestMonthly(t *testing.T) {
	day := func(d int) int64 { return time.Date(2024, 3, d, 10, 0, 0, 0, time.UTC).UnixMilli() }
	var historical []models.Withdrawal
	for i, course := range []string{"3A", "3A", "3A", "1B", "1B", "2C", "4D", "5E", "6F"} {
		historical = append(historical, models.Withdrawal{Course: course, CreatedAt: day(i + 1), ExitTime: "11:00"})
	}
	historical = append(historical, models.Withdrawal{Course: "3A", CreatedAt: time.Date(2024, 2, 28, 10, 0, 0, 0, time.UTC).UnixMilli(), ExitTime: "11:00"})

	summary := Monthly(historical, testNow, testOptions())
	assert.Equal(t, "2024-03", summary.Month)
	assert.Equal(t, 9, summary.Total)
	assert.InDelta(t, 0.3, summary.AvgPerDay, 1e-9)
	require.Len(t, summary.TopCourses, 5)
	assert.Equal(t, models.CourseCount{Label: "3A", Count: 3}, summary.TopCourses[0])
	assert.Equal(t, models.CourseCount{Label: "1B", Count: 2}, summary.TopCourses[1])
	assert.Equal(t, "2C", summary.TopCourses[2].Label)
}

func TestMonthly_Empty(t *testing.T) {
	summary := Monthly(nil, testNow, testOptions())
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 0.0, summary.AvgPerDay)
	assert.NotNil(t, summary.TopCourses)
}
