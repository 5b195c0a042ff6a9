package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_started_total",
		Help: "Sessions started",
	})

	metricSessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_ended_total",
		Help: "Sessions ended",
	})

	metricMicDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_mic_denied_total",
		Help: "Session starts aborted by denied microphone access",
	})
)
