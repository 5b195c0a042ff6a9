package playback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_segments_total",
		Help: "Audio segments handed to the player",
	})

	metricCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_completed_total",
		Help: "Segments that finished playing naturally",
	})

	metricInterrupts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_interrupts_total",
		Help: "Segments stopped by interruption",
	})

	metricSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_superseded_total",
		Help: "Segments discarded because a newer segment arrived",
	})

	metricDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_decode_failures_total",
		Help: "Malformed audio payloads skipped",
	})
)
