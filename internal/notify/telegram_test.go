package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"smartaqua.dev/smartaqua/internal/engine"
	"smartaqua.dev/smartaqua/internal/notify"
)

var _ = Describe("TelegramSender", func() {
	Describe("NewTelegramSender", func() {
		It("creates a sender from a valid config", func() {
			sender, err := notify.NewTelegramSender(&notify.TelegramConfig{
				BotToken: "123:abc",
				ChatID:   "42",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(sender.Name()).To(Equal("telegram"))
		})

		It("rejects a nil config", func() {
			_, err := notify.NewTelegramSender(nil)
			Expect(err).To(MatchError("telegram config cannot be nil"))
		})

		It("rejects an empty bot token", func() {
			_, err := notify.NewTelegramSender(&notify.TelegramConfig{ChatID: "42"})
			Expect(err).To(MatchError("bot token cannot be empty"))
		})

		It("rejects an empty chat id", func() {
			_, err := notify.NewTelegramSender(&notify.TelegramConfig{BotToken: "123:abc"})
			Expect(err).To(MatchError("chat id cannot be empty"))
		})
	})

	Describe("Send", func() {
		var (
			requests chan map[string]string
			paths    chan string
			server   *httptest.Server
			status   int
		)

		BeforeEach(func() {
			status = http.StatusOK
			requests = make(chan map[string]string, 1)
			paths = make(chan string, 1)
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body map[string]string
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				requests <- body
				paths <- r.URL.Path
				w.WriteHeader(status)
			}))
			DeferCleanup(server.Close)
		})

		newSender := func() *notify.TelegramSender {
			sender, err := notify.NewTelegramSender(&notify.TelegramConfig{
				BotToken: "123:abc",
				ChatID:   "42",
				BaseURL:  server.URL,
			})
			Expect(err).NotTo(HaveOccurred())
			return sender
		}

		It("posts the notification to the bot's sendMessage endpoint", func() {
			sender := newSender()
			ts := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

			err := sender.Send(context.Background(), engine.Notification{
				DeviceID:  "tank-a",
				AlertType: engine.AlertLeak,
				Message:   "LEAK DETECTED: Check for water leaks immediately!",
				Severity:  engine.SeverityHigh,
				Timestamp: ts,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(<-paths).To(Equal("/bot123:abc/sendMessage"))

			body := <-requests
			Expect(body["chat_id"]).To(Equal("42"))
			Expect(body["parse_mode"]).To(Equal("HTML"))
			Expect(body["text"]).To(ContainSubstring("Device: tank-a"))
			Expect(body["text"]).To(ContainSubstring("Type: leak"))
			Expect(body["text"]).To(ContainSubstring("Severity: high"))
			Expect(body["text"]).To(ContainSubstring("Time: 2026-08-29T12:00:00Z"))
			Expect(body["text"]).To(ContainSubstring("LEAK DETECTED"))
		})

		It("fails on a non-200 response", func() {
			status = http.StatusBadGateway
			sender := newSender()

			err := sender.Send(context.Background(), engine.Notification{DeviceID: "tank-a"})
			Expect(err).To(HaveOccurred())
			Expect(strings.Contains(err.Error(), "502")).To(BeTrue())
		})
	})
})
