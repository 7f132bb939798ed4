package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NotifierMetrics contains Prometheus metrics for the notification
// dispatcher.
type NotifierMetrics struct {
	JobsEnqueued     prometheus.Counter
	JobsDropped      prometheus.Counter
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	QueueDepth       prometheus.Gauge
}

// NewNotifierMetrics creates and registers notification dispatcher metrics.
func NewNotifierMetrics(namespace string) *NotifierMetrics {
	m := &NotifierMetrics{
		JobsEnqueued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifier",
				Name:      "jobs_enqueued_total",
				Help:      "Total number of notification jobs accepted",
			},
		),
		JobsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifier",
				Name:      "jobs_dropped_total",
				Help:      "Total number of notification jobs dropped on a full queue",
			},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifier",
				Name:      "deliveries_total",
				Help:      "Total number of delivery attempts",
			},
			[]string{"sender", "status"}, // status: success, error
		),
		DeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "notifier",
				Name:      "delivery_duration_seconds",
				Help:      "Duration of notification deliveries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"sender"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "notifier",
				Name:      "queue_depth",
				Help:      "Number of notification jobs waiting for delivery",
			},
		),
	}

	MustRegister(
		m.JobsEnqueued,
		m.JobsDropped,
		m.DeliveriesTotal,
		m.DeliveryDuration,
		m.QueueDepth,
	)

	return m
}
