package floor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTurnTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floor_turn_transitions_total",
		Help: "Turn state transitions",
	}, []string{"from", "to"})

	metricBargeIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floor_barge_in_total",
		Help: "AI productions interrupted by user speech",
	})

	metricManualInterrupts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floor_manual_interrupts_total",
		Help: "AI productions interrupted by explicit user request",
	})
)
