package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"smartaqua.dev/smartaqua/internal/engine"
	"smartaqua.dev/smartaqua/internal/notify"
)

type capturePublisher struct {
	msgType string
	payload []byte
	err     error
}

func (p *capturePublisher) Push(ctx context.Context, data []byte) error {
	return p.PushTyped(ctx, "", data)
}

func (p *capturePublisher) PushTyped(ctx context.Context, msgType string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.msgType = msgType
	p.payload = data
	return nil
}

func (p *capturePublisher) UnsafePush(ctx context.Context, msgType string, data []byte) error {
	return p.PushTyped(ctx, msgType, data)
}

func (p *capturePublisher) Consume() (<-chan amqp.Delivery, error) {
	return nil, errors.New("not a consumer")
}

func (p *capturePublisher) Close() error { return nil }

var _ = Describe("MQSender", func() {
	It("requires a client", func() {
		_, err := notify.NewMQSender(nil)
		Expect(err).To(MatchError("mq client cannot be nil"))
	})

	It("publishes the notification as a typed alert message", func() {
		publisher := &capturePublisher{}
		sender, err := notify.NewMQSender(publisher)
		Expect(err).NotTo(HaveOccurred())
		Expect(sender.Name()).To(Equal("mq"))

		note := engine.Notification{
			DeviceID:  "tank-a",
			AlertType: engine.AlertPumpFault,
			Message:   "PUMP FAULT: Pump running but no flow detected",
			Severity:  engine.SeverityHigh,
			Timestamp: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		}
		Expect(sender.Send(context.Background(), note)).To(Succeed())

		Expect(publisher.msgType).To(Equal("alert"))

		var decoded engine.Notification
		Expect(json.Unmarshal(publisher.payload, &decoded)).To(Succeed())
		Expect(decoded).To(Equal(note))
	})

	It("wraps publish failures", func() {
		publisher := &capturePublisher{err: errors.New("broker down")}
		sender, err := notify.NewMQSender(publisher)
		Expect(err).NotTo(HaveOccurred())

		sendErr := sender.Send(context.Background(), engine.Notification{DeviceID: "tank-a"})
		Expect(sendErr).To(HaveOccurred())
		Expect(sendErr.Error()).To(ContainSubstring("broker down"))
	})
})
