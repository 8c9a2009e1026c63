// Package metrics holds the Prometheus collectors of the notification pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_events_published_total",
		Help: "Domain events accepted by the event bus.",
	}, []string{"type"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_events_dropped_total",
		Help: "Domain events evicted from a full event bus queue.",
	})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_events_processed_total",
		Help: "Domain events handled by the processor, by outcome.",
	}, []string{"outcome"})

	NotificationsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_upserted_total",
		Help: "Notifications created or folded.",
	}, []string{"outcome"})

	ProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notifications_process_duration_seconds",
		Help:    "Time spent processing one domain event.",
		Buckets: prometheus.DefBuckets,
	})

	PushConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notifications_push_connections",
		Help: "Live real-time connections.",
	})

	PushDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_push_delivered_total",
		Help: "Payloads written to live connections.",
	})

	PushDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_push_dropped_total",
		Help: "Connections dropped by the push registry, by reason.",
	}, []string{"reason"})
)

// Event processing outcomes
const (
	OutcomeNotified  = "notified"
	OutcomeNoRule    = "no_rule"
	OutcomeFailed    = "failed"
	OutcomeCreated   = "created"
	OutcomeFolded    = "folded"
	ReasonQueueFull  = "queue_full"
	ReasonWriteError = "write_error"
)
