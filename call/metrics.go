package call

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quaff",
		Subsystem: "call",
		Name:      "messages_sent_total",
		Help:      "Outbound SIP messages, by kind.",
	}, []string{"kind"})

	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quaff",
		Subsystem: "call",
		Name:      "messages_received_total",
		Help:      "Inbound SIP messages delivered to a call, by kind.",
	}, []string{"kind"})

	retransmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quaff",
		Subsystem: "call",
		Name:      "retransmissions_total",
		Help:      "Messages resent by the backoff loop.",
	})

	receiveTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quaff",
		Subsystem: "call",
		Name:      "receive_timeouts_total",
		Help:      "Receive operations that hit their deadline.",
	})

	activeCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quaff",
		Subsystem: "call",
		Name:      "active_calls",
		Help:      "Calls created and not yet ended.",
	})
)
