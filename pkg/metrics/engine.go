package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics contains Prometheus metrics for the telemetry engine.
type EngineMetrics struct {
	ReadingsTotal    *prometheus.CounterVec
	IngestDuration   prometheus.Histogram
	AlertsRaised     *prometheus.CounterVec
	AlertsSuppressed prometheus.Counter
	LeakSignals      prometheus.Counter
	DevicesTracked   prometheus.Gauge
	HistoryEvictions prometheus.Counter
}

// NewEngineMetrics creates and registers engine metrics.
func NewEngineMetrics(namespace string) *EngineMetrics {
	m := &EngineMetrics{
		ReadingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "readings_total",
				Help:      "Total number of readings by outcome",
			},
			[]string{"status"}, // status: accepted, rejected_invalid, rejected_stale
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "ingest_duration_seconds",
				Help:      "Duration of the full ingestion pipeline per reading",
				Buckets:   prometheus.DefBuckets,
			},
		),
		AlertsRaised: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "alerts_raised_total",
				Help:      "Total number of alerts raised",
			},
			[]string{"alert_type", "severity"},
		),
		AlertsSuppressed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "alerts_suppressed_total",
				Help:      "Total number of alerts suppressed by the cooldown window",
			},
		),
		LeakSignals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "leak_signals_total",
				Help:      "Total number of heuristic leak detections",
			},
		),
		DevicesTracked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "devices_tracked",
				Help:      "Number of devices with a live status snapshot",
			},
		),
		HistoryEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "history_evictions_total",
				Help:      "Total readings evicted by the watchdog sweep",
			},
		),
	}

	MustRegister(
		m.ReadingsTotal,
		m.IngestDuration,
		m.AlertsRaised,
		m.AlertsSuppressed,
		m.LeakSignals,
		m.DevicesTracked,
		m.HistoryEvictions,
	)

	return m
}
