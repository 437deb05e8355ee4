package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
)

// Exporter publishes desk metrics and task outcomes in Prometheus format.
// Each exporter owns its registry so several can coexist in tests.
type Exporter struct {
	registry *prometheus.Registry

	active         prometheus.Gauge
	overdue        prometheus.Gauge
	completedToday prometheus.Gauge
	avgElapsed     prometheus.Gauge
	byStatus       *prometheus.GaugeVec

	taskRuns      *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	notifications *prometheus.CounterVec
}

var _ interfaces.RunObserver = (*Exporter)(nil)

// NewExporter creates an exporter with Go runtime collectors registered.
func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &Exporter{
		registry: registry,
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "portico_active",
			Help: "Withdrawals currently in progress",
		}),
		overdue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "portico_overdue",
			Help: "Active withdrawals past the waiting-time warning and not yet notified",
		}),
		completedToday: factory.NewGauge(prometheus.GaugeOpts{
			Name: "portico_completed_today",
			Help: "Withdrawals created today that already have an exit time",
		}),
		avgElapsed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "portico_average_elapsed_minutes",
			Help: "Mean minutes since creation over active withdrawals",
		}),
		byStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "portico_withdrawals",
			Help: "Withdrawals per status; FINALIZADO counts the local history",
		}, []string{"status"}),
		taskRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portico_task_runs_total",
			Help: "Scheduled task runs by outcome",
		}, []string{"task", "result"}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portico_task_duration_seconds",
			Help:    "Scheduled task run duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		}, []string{"task"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portico_notifications_total",
			Help: "Delivered notifications by kind",
		}, []string{"kind"}),
	}
}

// Registry returns the registry to serve on /metrics.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// ObserveMetrics sets the gauges from a projection.
func (e *Exporter) ObserveMetrics(m models.Metrics) {
	e.active.Set(float64(m.ActiveCount))
	e.overdue.Set(float64(m.OverdueCount))
	e.completedToday.Set(float64(m.CompletedToday))
	e.avgElapsed.Set(float64(m.AverageElapsedMinutes))
	for status, n := range m.StatusCounts {
		e.byStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}

// ObserveRun records one scheduled task run.
func (e *Exporter) ObserveRun(task, result string, d time.Duration) {
	e.taskRuns.WithLabelValues(task, result).Inc()
	e.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// Subscribe counts delivered notifications from the event bus.
func (e *Exporter) Subscribe(events interfaces.EventService) error {
	return events.Subscribe(interfaces.EventNotification, func(ctx context.Context, event interfaces.Event) error {
		if item, ok := event.Payload.(models.NotificationEvent); ok {
			e.notifications.WithLabelValues(string(item.Kind)).Inc()
		}
		return nil
	})
}
