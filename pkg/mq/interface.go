package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ClientInterface defines the message queue operations used by the consumer,
// the simulator and the notification sender. It exists for mocking and
// dependency injection.
type ClientInterface interface {
	// Push publishes a payload and waits for broker confirmation.
	Push(ctx context.Context, data []byte) error

	// PushTyped publishes a payload with an AMQP message type set.
	PushTyped(ctx context.Context, msgType string, data []byte) error

	// UnsafePush publishes without waiting for confirmation.
	UnsafePush(ctx context.Context, msgType string, data []byte) error

	// Consume continuously puts queue items on the returned channel. Each
	// delivery must be Acked once processed or Nacked on failure.
	Consume() (<-chan amqp.Delivery, error)

	// Close cleanly shuts down the channel and connection.
	Close() error
}

// Ensure Client implements ClientInterface.
var _ ClientInterface = (*Client)(nil)
