package channel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_connects_total",
		Help: "Successful backend channel connections",
	})

	metricConnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_connect_attempts_failed_total",
		Help: "Failed connection attempts (including reconnects)",
	})

	metricMessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_messages_sent_total",
		Help: "Messages written to the backend channel",
	})

	metricSendRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_send_rejected_total",
		Help: "Sends rejected because the channel was not connected",
	})

	metricSendDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_send_dropped_total",
		Help: "Sends dropped due to a full outbound queue",
	})

	metricMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_messages_received_total",
		Help: "Inbound messages by kind",
	}, []string{"kind"})

	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_state_transitions_total",
		Help: "Connection state transitions",
	}, []string{"from", "to"})
)
