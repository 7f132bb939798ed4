package backend_test

import (
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"smartaqua.dev/smartaqua/internal/backend"
	"smartaqua.dev/smartaqua/internal/engine"
)

var _ = Describe("Watchdog", func() {
	var (
		logger *slog.Logger
		eng    *engine.Engine
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))

		var err error
		eng, err = engine.New(&engine.Config{Logger: logger})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewWatchdog", func() {
		It("should create a watchdog with defaults", func() {
			watchdog, err := backend.NewWatchdog(&backend.WatchdogConfig{
				Logger: logger,
				Engine: eng,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(watchdog).NotTo(BeNil())
		})

		It("should return error when config is nil", func() {
			watchdog, err := backend.NewWatchdog(nil)
			Expect(err).To(HaveOccurred())
			Expect(watchdog).To(BeNil())
		})

		It("should return error when logger is nil", func() {
			watchdog, err := backend.NewWatchdog(&backend.WatchdogConfig{
				Engine: eng,
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("logger"))
			Expect(watchdog).To(BeNil())
		})

		It("should return error when engine is nil", func() {
			watchdog, err := backend.NewWatchdog(&backend.WatchdogConfig{
				Logger: logger,
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("engine"))
			Expect(watchdog).To(BeNil())
		})

		It("should reject an invalid cron expression on start", func() {
			watchdog, err := backend.NewWatchdog(&backend.WatchdogConfig{
				Logger:   logger,
				Engine:   eng,
				Schedule: "not a schedule",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(watchdog.Start()).NotTo(Succeed())
		})
	})

	Describe("Start and Stop", func() {
		It("should start and stop cleanly", func() {
			watchdog, err := backend.NewWatchdog(&backend.WatchdogConfig{
				Logger:       logger,
				Engine:       eng,
				Schedule:     "@every 1h",
				OfflineAfter: time.Hour,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(watchdog.Start()).To(Succeed())
			watchdog.Stop()
		})
	})
})
