package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gatherly"

var (
	notificationQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_size",
			Help:      "Number of notifications in queue by state",
		},
		[]string{"state"},
	)

	notificationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "enqueued_total",
			Help:      "Total notifications enqueued",
		},
		[]string{"kind"},
	)

	notificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "delivered_total",
			Help:      "Total delivery attempts by outcome",
		},
		[]string{"kind", "status"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "delivery_duration_seconds",
			Help:      "Time to deliver a notification",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	contentStoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "content_store_writes_total",
			Help:      "Content-addressed store writes by store and whether content was already present",
		},
		[]string{"store", "outcome"},
	)
)

// recordEnqueued records enqueued notifications.
func recordEnqueued(kind string, count int) {
	notificationsEnqueued.WithLabelValues(kind).Add(float64(count))
}

// recordDelivered records a delivery attempt outcome.
func recordDelivered(kind, status string) {
	notificationsDelivered.WithLabelValues(kind, status).Inc()
}

// recordDeliveryDuration records how long a delivery took.
func recordDeliveryDuration(kind string, duration time.Duration) {
	deliveryDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordContentStoreWrite records a content store put. Outcome is "inserted"
// for new content and "deduplicated" when the digest already existed.
func RecordContentStoreWrite(store string, inserted bool) {
	outcome := "deduplicated"
	if inserted {
		outcome = "inserted"
	}
	contentStoreWrites.WithLabelValues(store, outcome).Inc()
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats *QueueStats) {
	notificationQueueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	notificationQueueSize.WithLabelValues("errored").Set(float64(stats.Errored))
	notificationQueueSize.WithLabelValues("processed").Set(float64(stats.Processed))
}
