/*
metrics.go - Prometheus metrics for webhook processing

PURPOSE:
  Counters and timings for the webhook intake. Registered at package load
  via promauto so tests can construct handlers freely without duplicate
  registration.
*/
package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pointsmith/loyalty-engine/loyalty"
)

// WebhookEvents counts webhook deliveries by outcome.
var WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "loyalty",
	Subsystem: "webhook",
	Name:      "events_total",
	Help:      "Webhook deliveries by processing status and reason.",
}, []string{"status", "reason"})

// PointsAwarded counts points credited by order webhooks.
var PointsAwarded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "loyalty",
	Name:      "points_awarded_total",
	Help:      "Total points credited by order webhooks.",
})

// WebhookDuration tracks end-to-end webhook processing time.
var WebhookDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "loyalty",
	Subsystem: "webhook",
	Name:      "duration_seconds",
	Help:      "Webhook processing time from read to response.",
	Buckets:   prometheus.DefBuckets,
})

func observeWebhook(result loyalty.Result, elapsed time.Duration) {
	WebhookEvents.WithLabelValues(string(result.Status), string(result.Reason)).Inc()
	if result.PointsAwarded > 0 {
		PointsAwarded.Add(float64(result.PointsAwarded))
	}
	WebhookDuration.Observe(elapsed.Seconds())
}
