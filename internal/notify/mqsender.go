package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"smartaqua.dev/smartaqua/internal/engine"
	"smartaqua.dev/smartaqua/pkg/mq"
)

// MQSender publishes notifications onto the outbound notification queue so
// downstream consumers (dashboards, archivers) receive alert events.
type MQSender struct {
	client mq.ClientInterface
}

// NewMQSender creates a new MQSender instance.
func NewMQSender(client mq.ClientInterface) (*MQSender, error) {
	if client == nil {
		return nil, errors.New("mq client cannot be nil")
	}
	return &MQSender{client: client}, nil
}

// Name identifies the sender in logs and metrics.
func (m *MQSender) Name() string {
	return "mq"
}

// Send publishes the notification as a JSON message typed "alert".
func (m *MQSender) Send(ctx context.Context, n engine.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := m.client.PushTyped(ctx, "alert", payload); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
