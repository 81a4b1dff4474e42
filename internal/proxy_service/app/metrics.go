package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsCreatedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_proxy",
			Name:      "sessions_created_total",
			Help:      "Total number of session creation attempts by outcome.",
		},
		[]string{"status"}, // success, pool_exhausted, reservation_conflict, dispatch_failed, invalid, error
	)

	sessionsTerminatedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_proxy",
			Name:      "sessions_terminated_total",
			Help:      "Total number of sessions terminated by cause.",
		},
		[]string{"cause"}, // explicit, expired, trigger, compensation
	)

	reservationConflictsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sms_proxy",
			Name:      "reservation_conflicts_total",
			Help:      "Total number of binds that lost a race for a virtual number.",
		},
	)

	messagesRoutedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_proxy",
			Name:      "messages_routed_total",
			Help:      "Total number of inbound messages by routing decision.",
		},
		[]string{"decision"}, // relay, terminated, no_session, not_a_participant
	)

	dispatchFailuresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_proxy",
			Name:      "dispatch_failures_total",
			Help:      "Total number of outbound SMS dispatch failures by message type.",
		},
		[]string{"message_type"}, // start_notice, end_notice, no_session_notice, relay
	)

	sweepDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sms_proxy",
			Name:      "expiry_sweep_duration_seconds",
			Help:      "Duration of expired-session sweeps.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	natsInboundReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_proxy",
			Name:      "nats_messages_received_total",
			Help:      "Total number of NATS messages received for inbound SMS.",
		},
		[]string{"subject_pattern"},
	)

	eventsPublishedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_proxy",
			Name:      "events_published_total",
			Help:      "Total number of lifecycle events published to NATS.",
		},
		[]string{"event", "status"},
	)
)
