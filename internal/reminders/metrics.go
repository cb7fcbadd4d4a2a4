package reminders

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gatherly"

var (
	schedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "runs_total",
			Help:      "Total reminder scheduling runs by outcome",
		},
		[]string{"outcome"},
	)

	schedulerRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "run_duration_seconds",
			Help:      "Duration of a reminder scheduling run",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	reminderRecipients = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "recipients_total",
			Help:      "Total reminder recipients notified",
		},
	)
)

func recordRun(outcome string, duration time.Duration) {
	schedulerRuns.WithLabelValues(outcome).Inc()
	schedulerRunDuration.Observe(duration.Seconds())
}

func recordRecipients(count int) {
	reminderRecipients.Add(float64(count))
}
