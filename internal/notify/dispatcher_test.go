package notify_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"smartaqua.dev/smartaqua/internal/engine"
	"smartaqua.dev/smartaqua/internal/notify"
)

type captureSender struct {
	mu    sync.Mutex
	name  string
	sent  []engine.Notification
	fail  bool
	delay time.Duration
}

func (s *captureSender) Name() string { return s.name }

func (s *captureSender) Send(ctx context.Context, n engine.Notification) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("channel unavailable")
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *captureSender) received() []engine.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Notification(nil), s.sent...)
}

var _ = Describe("Dispatcher", func() {
	var (
		logger *slog.Logger
		sender *captureSender
	)

	note := func(deviceID string) engine.Notification {
		return engine.Notification{
			DeviceID:  deviceID,
			AlertType: engine.AlertLowWater,
			Message:   "WARNING: Tank 35.0% full - refill soon",
			Severity:  engine.SeverityMedium,
			Timestamp: time.Now().UTC(),
		}
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
		sender = &captureSender{name: "capture"}
	})

	Describe("NewDispatcher", func() {
		It("creates a dispatcher from a valid config", func() {
			d, err := notify.NewDispatcher(&notify.DispatcherConfig{
				Logger:  logger,
				Senders: []notify.Sender{sender},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(d).NotTo(BeNil())
		})

		It("rejects a nil config", func() {
			_, err := notify.NewDispatcher(nil)
			Expect(err).To(MatchError("dispatcher config cannot be nil"))
		})

		It("rejects a nil logger", func() {
			_, err := notify.NewDispatcher(&notify.DispatcherConfig{})
			Expect(err).To(MatchError("logger cannot be nil"))
		})
	})

	Describe("delivery", func() {
		It("fans a notification out to every sender", func() {
			second := &captureSender{name: "second"}
			d, err := notify.NewDispatcher(&notify.DispatcherConfig{
				Logger:  logger,
				Senders: []notify.Sender{sender, second},
			})
			Expect(err).NotTo(HaveOccurred())

			d.Start()
			d.Notify(note("tank-a"))

			Eventually(sender.received).Should(HaveLen(1))
			Eventually(second.received).Should(HaveLen(1))
			Expect(sender.received()[0].DeviceID).To(Equal("tank-a"))

			d.Stop()
		})

		It("keeps delivering after a sender failure", func() {
			failing := &captureSender{name: "failing", fail: true}
			d, err := notify.NewDispatcher(&notify.DispatcherConfig{
				Logger:  logger,
				Senders: []notify.Sender{failing, sender},
			})
			Expect(err).NotTo(HaveOccurred())

			d.Start()
			d.Notify(note("tank-a"))
			d.Notify(note("tank-b"))

			Eventually(sender.received).Should(HaveLen(2))
			d.Stop()
		})

		It("drains queued notifications on Stop", func() {
			d, err := notify.NewDispatcher(&notify.DispatcherConfig{
				Logger:  logger,
				Senders: []notify.Sender{sender},
			})
			Expect(err).NotTo(HaveOccurred())

			d.Start()
			for i := range 5 {
				d.Notify(note("tank-" + string(rune('a'+i))))
			}
			d.Stop()

			Expect(sender.received()).To(HaveLen(5))
		})

		It("drops notifications rather than blocking when the queue is full", func() {
			slow := &captureSender{name: "slow", delay: 50 * time.Millisecond}
			d, err := notify.NewDispatcher(&notify.DispatcherConfig{
				Logger:    logger,
				Senders:   []notify.Sender{slow},
				QueueSize: 1,
			})
			Expect(err).NotTo(HaveOccurred())

			// Without a running worker nothing leaves the queue, so the
			// second notification must be dropped immediately.
			done := make(chan struct{})
			go func() {
				defer close(done)
				d.Notify(note("tank-a"))
				d.Notify(note("tank-b"))
			}()
			Eventually(done).Should(BeClosed())
		})
	})
})
