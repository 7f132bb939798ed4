package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"smartaqua.dev/smartaqua/internal/engine"
	"smartaqua.dev/smartaqua/pkg/mq"
)

// alertMessageType marks a queue message carrying a device-originated alert
// event instead of a telemetry reading.
const alertMessageType = "alert"

// Consumer consumes telemetry and alert messages from RabbitMQ and feeds
// them into the analysis engine.
type Consumer struct {
	logger   *slog.Logger
	engine   *engine.Engine
	mqClient mq.ClientInterface
	done     chan struct{}
}

// ConsumerConfig holds the configuration for the Consumer.
type ConsumerConfig struct {
	Logger      *slog.Logger
	Engine      *engine.Engine
	RabbitMQURL string
	QueueName   string
	// MQClient overrides the client built from RabbitMQURL and QueueName.
	// Used in tests.
	MQClient mq.ClientInterface
}

// deviceAlertEvent is the wire shape of a device-originated alert message.
type deviceAlertEvent struct {
	DeviceID    string  `json:"device_id"`
	AlertType   string  `json:"alert_type"`
	Message     string  `json:"message"`
	Severity    string  `json:"severity"`
	LevelCm     float64 `json:"level_cm"`
	PercentFull float64 `json:"percent_full"`
	Timestamp   string  `json:"timestamp"`
}

// NewConsumer creates a new Consumer instance.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Engine == nil {
		return nil, errors.New("engine cannot be nil")
	}

	mqClient := cfg.MQClient
	if mqClient == nil {
		if cfg.RabbitMQURL == "" {
			return nil, errors.New("rabbitmq URL cannot be empty")
		}

		if cfg.QueueName == "" {
			return nil, errors.New("queue name cannot be empty")
		}

		mqClient = mq.New(cfg.QueueName, cfg.RabbitMQURL, cfg.Logger)
	}

	return &Consumer{
		logger:   cfg.Logger,
		engine:   cfg.Engine,
		mqClient: mqClient,
		done:     make(chan struct{}),
	}, nil
}

// Start begins consuming messages from RabbitMQ.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting consumer")

	// Wait for MQ client to be ready
	time.Sleep(2 * time.Second)

	deliveries, err := c.mqClient.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consumer started, waiting for messages")

	go c.processMessages(ctx, deliveries)

	return nil
}

// processMessages processes incoming messages from the deliveries channel.
func (c *Consumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping message processing")
			close(c.done)
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed")
				close(c.done)
				return
			}

			c.handleDelivery(delivery)
		}
	}
}

// handleDelivery processes a single message delivery. Malformed and rejected
// payloads are acked so they are not redelivered; transient failures are
// nacked back onto the queue.
func (c *Consumer) handleDelivery(delivery amqp.Delivery) {
	var err error
	if delivery.Type == alertMessageType {
		err = c.handleAlertEvent(delivery.Body)
	} else {
		err = c.handleReading(delivery.Body)
	}

	if err != nil && !isDroppable(err) {
		c.logger.Error("failed to process message",
			"type", delivery.Type,
			"error", err,
		)
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr)
		}
		return
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("failed to ack message", "error", ackErr)
	}
}

// handleReading decodes a telemetry payload and runs it through the engine.
func (c *Consumer) handleReading(body []byte) error {
	var raw engine.RawReading
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Error("failed to unmarshal telemetry payload", "error", err)
		return errDropped
	}

	c.logger.Debug("received telemetry reading",
		"device_id", raw.DeviceID,
		"timestamp", raw.TS,
		"level_cm", raw.LevelCm,
	)

	if err := c.engine.Ingest(raw); err != nil {
		if engine.IsValidation(err) || engine.IsStale(err) {
			c.logger.Warn("reading rejected",
				"device_id", raw.DeviceID,
				"error", err,
			)
			return errDropped
		}
		return err
	}

	return nil
}

// handleAlertEvent decodes a device-originated alert and records it.
func (c *Consumer) handleAlertEvent(body []byte) error {
	var event deviceAlertEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Error("failed to unmarshal alert event", "error", err)
		return errDropped
	}

	if event.DeviceID == "" {
		c.logger.Warn("alert event missing device id, dropping")
		return errDropped
	}

	severity := engine.Severity(event.Severity)
	switch severity {
	case engine.SeverityLow, engine.SeverityMedium, engine.SeverityHigh:
	default:
		severity = engine.SeverityMedium
	}

	alert := c.engine.RecordDeviceAlert(engine.Alert{
		DeviceID:    event.DeviceID,
		Type:        engine.AlertType(event.AlertType),
		Message:     event.Message,
		Severity:    severity,
		LevelCm:     event.LevelCm,
		PercentFull: event.PercentFull,
	})

	c.logger.Info("recorded device alert",
		"device_id", alert.DeviceID,
		"alert_type", alert.Type,
		"severity", alert.Severity,
	)
	return nil
}

// errDropped marks a message that was consumed but intentionally discarded.
var errDropped = errors.New("message dropped")

func isDroppable(err error) bool {
	return errors.Is(err, errDropped)
}

// Stop stops the consumer and closes the MQ client.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping consumer")

	if err := c.mqClient.Close(); err != nil {
		return fmt.Errorf("failed to close mq client: %w", err)
	}

	// Wait for message processing to complete
	<-c.done

	c.logger.Info("consumer stopped")
	return nil
}
