package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulatorMetrics contains Prometheus metrics for the tank fleet simulator.
type SimulatorMetrics struct {
	ReadingsPublished *prometheus.CounterVec
	PublishFailures   *prometheus.CounterVec
	FleetSize         prometheus.Gauge
}

// NewSimulatorMetrics creates and registers simulator metrics.
func NewSimulatorMetrics(namespace string) *SimulatorMetrics {
	m := &SimulatorMetrics{
		ReadingsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "readings_published_total",
				Help:      "Total number of synthetic readings published",
			},
			[]string{"device_id"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "publish_failures_total",
				Help:      "Total number of failed publishes",
			},
			[]string{"device_id"},
		),
		FleetSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "fleet_size",
				Help:      "Number of simulated tank devices",
			},
		),
	}

	MustRegister(
		m.ReadingsPublished,
		m.PublishFailures,
		m.FleetSize,
	)

	return m
}
