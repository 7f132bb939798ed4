package backend_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"smartaqua.dev/smartaqua/internal/backend"
)

var _ = Describe("Models", func() {
	Describe("TelemetryRecord", func() {
		Context("table name", func() {
			It("should return telemetry", func() {
				record := backend.TelemetryRecord{}
				Expect(record.TableName()).To(Equal("telemetry"))
			})
		})

		Context("struct initialization", func() {
			It("should initialize with zero values", func() {
				record := backend.TelemetryRecord{}
				Expect(record.DeviceID).To(BeEmpty())
				Expect(record.LevelCm).To(BeZero())
				Expect(record.PercentFull).To(BeZero())
				Expect(record.FlowLMin).To(BeZero())
				Expect(record.PumpState).To(BeEmpty())
				Expect(record.LeakDetected).To(BeFalse())
				Expect(record.ID).To(BeZero())
			})

			It("should allow setting values", func() {
				now := time.Now().UTC()
				record := backend.TelemetryRecord{
					DeviceID:     "tank-001",
					Timestamp:    now,
					LevelCm:      112.5,
					TankHeightCm: 150.0,
					PercentFull:  75.0,
					FlowLMin:     2.4,
					PumpState:    "ON",
					TemperatureC: 26.5,
					TDSPpm:       320.0,
					BatteryV:     3.7,
					LeakDetected: false,
				}

				Expect(record.DeviceID).To(Equal("tank-001"))
				Expect(record.Timestamp).To(Equal(now))
				Expect(record.LevelCm).To(Equal(112.5))
				Expect(record.PercentFull).To(Equal(75.0))
				Expect(record.PumpState).To(Equal("ON"))
			})
		})
	})

	Describe("AlertRecord", func() {
		Context("table name", func() {
			It("should return alerts", func() {
				record := backend.AlertRecord{}
				Expect(record.TableName()).To(Equal("alerts"))
			})
		})

		Context("struct initialization", func() {
			It("should initialize with zero values", func() {
				record := backend.AlertRecord{}
				Expect(record.AlertID).To(BeEmpty())
				Expect(record.DeviceID).To(BeEmpty())
				Expect(record.AlertType).To(BeEmpty())
				Expect(record.Message).To(BeEmpty())
				Expect(record.Resolved).To(BeFalse())
			})

			It("should allow setting values", func() {
				now := time.Now().UTC()
				record := backend.AlertRecord{
					AlertID:     "e9c2a1f0-0000-0000-0000-000000000000",
					DeviceID:    "tank-001",
					AlertType:   "low_water",
					Message:     "Water level critical: 15.0% remaining",
					Severity:    "high",
					Timestamp:   now,
					LevelCm:     22.5,
					PercentFull: 15.0,
					Resolved:    false,
				}

				Expect(record.AlertID).NotTo(BeEmpty())
				Expect(record.AlertType).To(Equal("low_water"))
				Expect(record.Severity).To(Equal("high"))
				Expect(record.PercentFull).To(Equal(15.0))
			})
		})
	})

	Describe("DeviceRecord", func() {
		Context("table name", func() {
			It("should return devices", func() {
				record := backend.DeviceRecord{}
				Expect(record.TableName()).To(Equal("devices"))
			})
		})

		Context("struct initialization", func() {
			It("should allow setting tank geometry", func() {
				record := backend.DeviceRecord{
					DeviceID:                 "tank-001",
					TankHeightCm:             200.0,
					TankDiameterCm:           120.0,
					TankCapacityLiters:       2261.9,
					LeakThresholdPercent:     1.5,
					OverflowThresholdPercent: 97.0,
				}

				Expect(record.DeviceID).To(Equal("tank-001"))
				Expect(record.TankHeightCm).To(Equal(200.0))
				Expect(record.TankDiameterCm).To(Equal(120.0))
				Expect(record.TankCapacityLiters).To(BeNumerically("~", 2261.9, 0.1))
				Expect(record.LeakThresholdPercent).To(Equal(1.5))
				Expect(record.OverflowThresholdPercent).To(Equal(97.0))
			})
		})
	})
})
