// Package metrics exposes the monitor's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TasksStarted counts task dispatches.
	TasksStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qwics_tasks_started_total",
		Help: "Total number of tasks dispatched",
	})

	// TasksEnded counts finished tasks, normal or abended.
	TasksEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qwics_tasks_ended_total",
		Help: "Total number of tasks finished",
	})

	// Abends counts abnormal terminations by abend code.
	Abends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qwics_abends_total",
		Help: "Total number of task abends by code",
	}, []string{"abcode"})

	// EnqRequests counts enqueue acquisitions attempted by programs.
	EnqRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qwics_enq_requests_total",
		Help: "Total number of ENQ requests",
	})

	// Sessions tracks the currently connected client sessions.
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qwics_sessions_active",
		Help: "Client sessions currently connected",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
