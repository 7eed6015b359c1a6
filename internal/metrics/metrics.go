package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/veldrane/driftwood/internal/event"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwood_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftwood_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Task metrics
var (
	TasksEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwood_tasks_enqueued_total",
			Help: "Total number of tasks enqueued",
		},
		[]string{"kind"},
	)

	TasksFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwood_tasks_finished_total",
			Help: "Total number of tasks that reached a terminal state",
		},
		[]string{"kind", "status"},
	)

	ItemsChangedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwood_catalogue_items_changed_total",
			Help: "Catalogue items touched by completed scan tasks",
		},
		[]string{"change"},
	)
)

// Monitor metrics
var (
	ChangesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwood_monitor_changes_total",
			Help: "Change events emitted by the library monitor",
		},
		[]string{"change_type"},
	)

	SourceChecksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftwood_monitor_checks_total",
			Help: "Detection cycles completed by the library monitor",
		},
	)

	MonitorActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftwood_monitor_active",
			Help: "Whether the library monitor is running (1) or stopped (0)",
		},
	)
)

// Push metrics
var (
	SSEClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftwood_sse_clients",
			Help: "Connected server-sent-event clients",
		},
	)
)

// ObserveBus subscribes the counters above to the event bus. Call once
// during startup, before the bus starts dispatching.
func ObserveBus(bus *event.Bus) {
	bus.Subscribe(event.TaskQueued, func(e event.Event) {
		TasksEnqueuedTotal.WithLabelValues(dataString(e, "kind")).Inc()
	})
	finished := func(e event.Event) {
		TasksFinishedTotal.WithLabelValues(dataString(e, "kind"), dataString(e, "status")).Inc()
	}
	bus.Subscribe(event.TaskCompleted, func(e event.Event) {
		finished(e)
		ItemsChangedTotal.WithLabelValues("added").Add(dataFloat(e, "items_added"))
		ItemsChangedTotal.WithLabelValues("updated").Add(dataFloat(e, "items_updated"))
		ItemsChangedTotal.WithLabelValues("removed").Add(dataFloat(e, "items_removed"))
	})
	bus.Subscribe(event.TaskFailed, finished)
	bus.Subscribe(event.TaskCancelled, finished)

	bus.Subscribe(event.ChangeDetected, func(e event.Event) {
		ChangesDetectedTotal.WithLabelValues(dataString(e, "change_type")).Inc()
	})
	bus.Subscribe(event.SourceChecked, func(event.Event) {
		SourceChecksTotal.Inc()
	})
	bus.Subscribe(event.MonitorStarted, func(event.Event) {
		MonitorActive.Set(1)
	})
	bus.Subscribe(event.MonitorStopped, func(event.Event) {
		MonitorActive.Set(0)
	})
}

func dataString(e event.Event, key string) string {
	if s, ok := e.Data[key].(string); ok {
		return s
	}
	return "unknown"
}

func dataFloat(e event.Event, key string) float64 {
	switch v := e.Data[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return 0
}
