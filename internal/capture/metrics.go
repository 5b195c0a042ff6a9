package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_starts_total",
		Help: "Recognition sessions started",
	})

	metricStartBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_start_blocked_total",
		Help: "Start attempts blocked by the single-flight guard",
	})

	metricStartGated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_start_gated_total",
		Help: "Start attempts refused by turn-taking policy",
	})

	metricStartTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_start_timeouts_total",
		Help: "Start guards cleared by timeout without an engine callback",
	})

	metricFinals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_finals_total",
		Help: "Finalized phrases emitted",
	})

	metricEngineErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_engine_errors_total",
		Help: "Engine-level errors absorbed by the restart policy",
	})
)
