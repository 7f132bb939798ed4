// Package mq provides end-to-end tests for the RabbitMQ client against a
// real broker.
package mq

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	clientmq "smartaqua.dev/smartaqua/pkg/mq"
)

var _ = Describe("MQ Client E2E", func() {
	var (
		client    *clientmq.Client
		queueName string
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		// Unique queue per test so acks and leftovers cannot leak between specs
		queueName = "tank-telemetry-" + time.Now().Format("20060102-150405.000")
	})

	AfterEach(func() {
		if client != nil {
			_ = client.Close()
			client = nil
		}
	})

	Describe("Connection", func() {
		It("should connect to RabbitMQ successfully", func() {
			client = clientmq.New(queueName, rabbitmqURL, testLogger)
			Expect(client).NotTo(BeNil())

			// Give client time to connect
			time.Sleep(1 * time.Second)
		})

		It("should handle invalid URL gracefully", func() {
			invalidClient := clientmq.New(queueName, "amqp://invalid:5672", testLogger)
			Expect(invalidClient).NotTo(BeNil())

			// Should not crash, will keep retrying in background
			time.Sleep(500 * time.Millisecond)

			_ = invalidClient.Close()
		})
	})

	Describe("Publishing", func() {
		BeforeEach(func() {
			client = clientmq.New(queueName, rabbitmqURL, testLogger)
			time.Sleep(2 * time.Second) // Wait for connection
		})

		It("should publish a telemetry payload successfully", func() {
			err := client.Push(ctx, []byte(`{"device_id":"tank-1","level_cm":90.0}`))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should publish a burst of readings successfully", func() {
			for range 10 {
				err := client.Push(ctx, []byte(`{"device_id":"tank-1","level_cm":89.5}`))
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should publish large messages successfully", func() {
			// 1MB payload, far beyond any real reading
			largeMessage := make([]byte, 1024*1024)
			for i := range largeMessage {
				largeMessage[i] = byte(i % 256)
			}

			err := client.Push(ctx, largeMessage)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should use UnsafePush without waiting for confirmation", func() {
			err := client.UnsafePush(ctx, "", []byte(`{"device_id":"tank-1"}`))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Consuming", func() {
		BeforeEach(func() {
			client = clientmq.New(queueName, rabbitmqURL, testLogger)
			time.Sleep(2 * time.Second) // Wait for connection
		})

		It("should deliver a published reading", func() {
			// Start consuming FIRST
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())
			Expect(deliveries).NotTo(BeNil())

			// Wait for consumer to register on server
			time.Sleep(500 * time.Millisecond)

			err = client.Push(ctx, []byte(`{"device_id":"tank-consume"}`))
			Expect(err).NotTo(HaveOccurred())

			select {
			case delivery := <-deliveries:
				Expect(string(delivery.Body)).To(ContainSubstring("tank-consume"))
			case <-time.After(5 * time.Second):
				Fail("Did not receive message within timeout")
			}
		})

		It("should deliver readings in publish order", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(500 * time.Millisecond)

			levels := []string{
				`{"device_id":"tank-1","level_cm":90.0}`,
				`{"device_id":"tank-1","level_cm":89.0}`,
				`{"device_id":"tank-1","level_cm":88.0}`,
			}
			for _, body := range levels {
				err := client.Push(ctx, []byte(body))
				Expect(err).NotTo(HaveOccurred())
			}

			// Qos is 1, so each delivery must be acked before the next arrives
			received := make([]string, 0, 3)
			for range 3 {
				select {
				case delivery := <-deliveries:
					received = append(received, string(delivery.Body))
					Expect(delivery.Ack(false)).To(Succeed())
				case <-time.After(5 * time.Second):
					Fail("Did not receive all messages within timeout")
				}
			}

			Expect(received).To(Equal(levels))
		})

		It("should carry the message type set by PushTyped", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(500 * time.Millisecond)

			err = client.PushTyped(ctx, "alert", []byte(`{"device_id":"tank-1","alert_type":"leak"}`))
			Expect(err).NotTo(HaveOccurred())

			select {
			case delivery := <-deliveries:
				Expect(delivery.Type).To(Equal("alert"))
				Expect(delivery.Ack(false)).To(Succeed())
			case <-time.After(5 * time.Second):
				Fail("Did not receive message within timeout")
			}
		})

		It("should leave the type empty for plain Push", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(500 * time.Millisecond)

			err = client.Push(ctx, []byte(`{"device_id":"tank-1"}`))
			Expect(err).NotTo(HaveOccurred())

			select {
			case delivery := <-deliveries:
				Expect(delivery.Type).To(BeEmpty())
				Expect(delivery.Ack(false)).To(Succeed())
			case <-time.After(5 * time.Second):
				Fail("Did not receive message within timeout")
			}
		})
	})

	Describe("Error Handling", func() {
		It("should reject operations before the connection is up", func() {
			client = clientmq.New(queueName, rabbitmqURL, testLogger)
			// Don't wait for connection

			err := client.UnsafePush(ctx, "", []byte(`{"device_id":"tank-1"}`))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Resource Cleanup", func() {
		It("should close client cleanly", func() {
			client = clientmq.New(queueName, rabbitmqURL, testLogger)
			time.Sleep(2 * time.Second)

			err := client.Close()
			Expect(err).NotTo(HaveOccurred())

			client = nil // Prevent double close in AfterEach
		})

		It("should handle close on unconnected client", func() {
			client = clientmq.New(queueName, "amqp://invalid:5672", testLogger)
			time.Sleep(500 * time.Millisecond)

			err := client.Close()
			Expect(err).To(HaveOccurred()) // Never connected

			client = nil
		})

		It("should handle double close gracefully", func() {
			client = clientmq.New(queueName, rabbitmqURL, testLogger)
			time.Sleep(2 * time.Second)

			err1 := client.Close()
			Expect(err1).NotTo(HaveOccurred())

			err2 := client.Close()
			Expect(err2).To(HaveOccurred())

			client = nil
		})
	})

	Describe("Message Properties", func() {
		BeforeEach(func() {
			client = clientmq.New(queueName, rabbitmqURL, testLogger)
			time.Sleep(2 * time.Second)
		})

		It("should preserve message content exactly", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(500 * time.Millisecond)

			originalMessage := []byte(`{"device_id":"tank-µ","note":"exact content"}`)
			err = client.Push(ctx, originalMessage)
			Expect(err).NotTo(HaveOccurred())

			select {
			case delivery := <-deliveries:
				Expect(delivery.Body).To(Equal(originalMessage))
			case <-time.After(5 * time.Second):
				Fail("Did not receive message within timeout")
			}
		})

		It("should handle empty messages", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(500 * time.Millisecond)

			err = client.Push(ctx, []byte{})
			Expect(err).NotTo(HaveOccurred())

			select {
			case delivery := <-deliveries:
				Expect(delivery.Body).To(HaveLen(0))
			case <-time.After(5 * time.Second):
				Fail("Did not receive message within timeout")
			}
		})
	})
})
