package backend_test

import (
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"smartaqua.dev/smartaqua/internal/backend"
)

var _ = Describe("Database", func() {
	var logger *slog.Logger

	newConfig := func(mutate func(*backend.DBConfig)) *backend.DBConfig {
		cfg := &backend.DBConfig{
			Logger:   logger,
			Host:     "localhost",
			Port:     5432,
			User:     "smartaqua",
			Password: "password",
			DBName:   "smartaqua",
			SSLMode:  "disable",
		}
		if mutate != nil {
			mutate(cfg)
		}
		return cfg
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	})

	Describe("NewDB", func() {
		Context("with invalid configuration", func() {
			It("should return error when config is nil", func() {
				db, err := backend.NewDB(nil)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("config cannot be nil"))
				Expect(db).To(BeNil())
			})

			It("should return error when logger is nil", func() {
				db, err := backend.NewDB(newConfig(func(cfg *backend.DBConfig) {
					cfg.Logger = nil
				}))
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("logger"))
				Expect(db).To(BeNil())
			})
		})

		// Without a reachable server every open fails, but the DSN these
		// parameters produce must be accepted as far as the dial attempt.
		DescribeTable("should build a DSN and fail only at connection time",
			func(mutate func(*backend.DBConfig)) {
				db, err := backend.NewDB(newConfig(mutate))
				Expect(err).To(HaveOccurred())
				Expect(db).To(BeNil())
			},
			Entry("unresolvable host", func(cfg *backend.DBConfig) {
				cfg.Host = "invalid-host-that-does-not-exist"
			}),
			Entry("out-of-range port", func(cfg *backend.DBConfig) {
				cfg.Port = 99999
			}),
			Entry("closed port", func(cfg *backend.DBConfig) {
				cfg.Port = 9999
			}),
			Entry("ssl required", func(cfg *backend.DBConfig) {
				cfg.SSLMode = "require"
			}),
			Entry("ssl verify-full", func(cfg *backend.DBConfig) {
				cfg.SSLMode = "verify-full"
			}),
			Entry("empty password", func(cfg *backend.DBConfig) {
				cfg.Password = ""
			}),
			Entry("alternate database name", func(cfg *backend.DBConfig) {
				cfg.DBName = "tank_telemetry"
			}),
			Entry("numeric host", func(cfg *backend.DBConfig) {
				cfg.Host = "10.0.0.1"
				cfg.Port = 15432
			}),
		)
	})

	Describe("CloseDB", func() {
		It("should handle nil database gracefully", func() {
			err := backend.CloseDB(nil, logger)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should handle nil logger gracefully", func() {
			err := backend.CloseDB(nil, nil)
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
