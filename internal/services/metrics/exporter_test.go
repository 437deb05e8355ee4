package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
	"github.com/ternarybob/portico/internal/services/events"
)

func TestExporter_ObserveMetrics(t *testing.T) {
	e := NewExporter()
	e.ObserveMetrics(models.Metrics{
		ActiveCount:           2,
		OverdueCount:          1,
		CompletedToday:        3,
		AverageElapsedMinutes: 30,
		StatusCounts:          map[models.Status]int{models.StatusWaiting: 2, models.StatusCompleted: 7},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(e.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.overdue))
	assert.Equal(t, 3.0, testutil.ToFloat64(e.completedToday))
	assert.Equal(t, 30.0, testutil.ToFloat64(e.avgElapsed))
	assert.Equal(t, 7.0, testutil.ToFloat64(e.byStatus.WithLabelValues("FINALIZADO")))
}

func TestExporter_RunsAndNotifications(t *testing.T) {
	e := NewExporter()
	e.ObserveRun("sync", "unchanged", 20*time.Millisecond)
	e.ObserveRun("sync", "unchanged", 30*time.Millisecond)
	e.ObserveRun("sync", "failed", time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(e.taskRuns.WithLabelValues("sync", "unchanged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.taskRuns.WithLabelValues("sync", "failed")))

	bus := events.NewService(arbor.NewLogger())
	require.NoError(t, e.Subscribe(bus))
	event := interfaces.Event{Type: interfaces.EventNotification, Payload: models.NotificationEvent{Kind: models.NotificationCompleted}}
	require.NoError(t, bus.PublishSync(context.Background(), event))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.notifications.WithLabelValues("completed")))

	families, err := e.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
