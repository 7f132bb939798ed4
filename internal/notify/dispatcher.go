// Package notify delivers alert notifications to outbound channels. A
// Dispatcher fans notifications out to the configured senders from a single
// worker goroutine so slow channels never block the ingestion path.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"smartaqua.dev/smartaqua/internal/engine"
	"smartaqua.dev/smartaqua/pkg/metrics"
)

const defaultQueueSize = 64

// Sender delivers a single notification to one outbound channel.
type Sender interface {
	// Name identifies the sender in logs and metrics.
	Name() string
	Send(ctx context.Context, n engine.Notification) error
}

// Dispatcher queues notifications and delivers them asynchronously. It
// implements engine.Notifier. When the queue is full new notifications are
// dropped rather than blocking the caller.
type Dispatcher struct {
	logger  *slog.Logger
	senders []Sender
	metrics *metrics.NotifierMetrics
	queue   chan engine.Notification
	stop    chan struct{}
	wg      sync.WaitGroup
}

// DispatcherConfig holds the configuration for the Dispatcher.
type DispatcherConfig struct {
	Logger  *slog.Logger
	Senders []Sender
	Metrics *metrics.NotifierMetrics
	// QueueSize bounds the pending notification queue. Defaults to 64.
	QueueSize int
}

// NewDispatcher creates a new Dispatcher instance.
func NewDispatcher(cfg *DispatcherConfig) (*Dispatcher, error) {
	if cfg == nil {
		return nil, errors.New("dispatcher config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	return &Dispatcher{
		logger:  cfg.Logger,
		senders: cfg.Senders,
		metrics: cfg.Metrics,
		queue:   make(chan engine.Notification, size),
		stop:    make(chan struct{}),
	}, nil
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.worker()
	d.logger.Info("notification dispatcher started", "senders", len(d.senders))
}

// Stop drains the queue and waits for the worker to exit.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
	d.logger.Info("notification dispatcher stopped")
}

// Notify enqueues a notification for delivery. It never blocks.
func (d *Dispatcher) Notify(n engine.Notification) {
	select {
	case d.queue <- n:
		if d.metrics != nil {
			d.metrics.JobsEnqueued.Inc()
			d.metrics.QueueDepth.Set(float64(len(d.queue)))
		}
	default:
		if d.metrics != nil {
			d.metrics.JobsDropped.Inc()
		}
		d.logger.Warn("notification queue full, dropping",
			"device_id", n.DeviceID,
			"alert_type", n.AlertType,
		)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		case <-d.stop:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case n := <-d.queue:
					d.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(n engine.Notification) {
	if d.metrics != nil {
		d.metrics.QueueDepth.Set(float64(len(d.queue)))
	}

	for _, sender := range d.senders {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		start := time.Now()
		err := sender.Send(ctx, n)
		cancel()

		status := "success"
		if err != nil {
			status = "error"
			d.logger.Error("notification delivery failed",
				"sender", sender.Name(),
				"device_id", n.DeviceID,
				"error", err,
			)
		}

		if d.metrics != nil {
			d.metrics.DeliveriesTotal.WithLabelValues(sender.Name(), status).Inc()
			d.metrics.DeliveryDuration.WithLabelValues(sender.Name()).Observe(time.Since(start).Seconds())
		}
	}
}
