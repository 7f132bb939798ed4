// Package engine implements the telemetry analysis and alerting pipeline for
// water-tank devices: reading normalization, per-device status tracking,
// bounded history, consumption prediction, leak detection and alert lifecycle
// management.
package engine

import "time"

// PumpState reports whether a device's pump is running.
type PumpState string

const (
	PumpOn  PumpState = "ON"
	PumpOff PumpState = "OFF"
)

// RawReading is a telemetry payload as delivered by the transport, before
// validation. Optional sensors are pointers so the normalizer can tell
// "absent" from "zero".
type RawReading struct {
	DeviceID     string   `json:"device_id"`
	TS           string   `json:"ts"`
	LevelCm      float64  `json:"level_cm"`
	TankHeightCm float64  `json:"tank_height_cm"`
	PercentFull  float64  `json:"percent_full"`
	FlowLMin     *float64 `json:"flow_l_min,omitempty"`
	PumpState    string   `json:"pump_state,omitempty"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	TDSPpm       *float64 `json:"tds_ppm,omitempty"`
	BatteryV     *float64 `json:"battery_v,omitempty"`
	LeakDetected *bool    `json:"leak_detected,omitempty"`
}

// Reading is one validated, normalized sample for one device. Immutable once
// stored in history.
type Reading struct {
	DeviceID     string
	Timestamp    time.Time
	LevelCm      float64
	TankHeightCm float64
	PercentFull  float64
	FlowLMin     float64
	PumpState    PumpState
	TemperatureC float64
	TDSPpm       float64
	BatteryV     float64
	LeakDetected bool
}

// DeviceConfig holds the fixed physical configuration of a tank device.
type DeviceConfig struct {
	DeviceID                 string
	TankHeightCm             float64
	TankDiameterCm           float64
	TankCapacityLiters       float64
	LeakThresholdPercent     float64
	OverflowThresholdPercent float64
}

// DeviceStatus is the latest-known snapshot for a device. Prediction fields
// stay nil until enough history has accumulated.
type DeviceStatus struct {
	DeviceID          string     `json:"device_id"`
	LevelCm           float64    `json:"level_cm"`
	PercentFull       float64    `json:"percent_full"`
	FlowLMin          float64    `json:"flow_l_min"`
	PumpState         PumpState  `json:"pump_state"`
	TemperatureC      float64    `json:"temperature_c"`
	TDSPpm            float64    `json:"tds_ppm"`
	BatteryV          float64    `json:"battery_v"`
	LastUpdate        time.Time  `json:"last_update"`
	DaysUntilEmpty    *float64   `json:"days_until_empty"`
	ConsumptionTodayL *float64   `json:"consumption_today"`
	ConsumptionWeekL  *float64   `json:"consumption_week"`
}

// AlertType classifies an alert. Values match the wire format used by
// devices and consumed downstream.
type AlertType string

const (
	AlertLowWater     AlertType = "low_water"
	AlertLeak         AlertType = "leak"
	AlertPumpFault    AlertType = "pump_fault"
	AlertWaterQuality AlertType = "water_quality"
	AlertOverflow     AlertType = "overflow"
	AlertOther        AlertType = "other"
)

// Severity ranks how urgent an alert is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert is a persisted notice of an abnormal condition. Alerts are never
// deleted; resolution is a one-way transition.
type Alert struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	Type        AlertType `json:"alert_type"`
	Message     string    `json:"message"`
	Severity    Severity  `json:"severity"`
	Timestamp   time.Time `json:"timestamp"`
	LevelCm     float64   `json:"level_cm"`
	PercentFull float64   `json:"percent_full"`
	Resolved    bool      `json:"resolved"`
}

// Notification is the payload handed to the outbound notification
// collaborator when an alert is raised.
type Notification struct {
	DeviceID  string    `json:"device_id"`
	AlertType AlertType `json:"alert_type"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives notifications for raised alerts. Implementations must not
// block: the engine hands the payload off and moves on.
type Notifier interface {
	Notify(Notification)
}

// ReadingSink persists accepted readings. A sink failure never aborts
// ingestion; the engine logs it and continues.
type ReadingSink interface {
	SaveReading(Reading) error
}

// AlertArchiver persists alert lifecycle changes.
type AlertArchiver interface {
	SaveAlert(Alert) error
	MarkAlertResolved(deviceID, alertID string) error
}

// DeviceSink persists device registrations created when an unknown device
// first reports.
type DeviceSink interface {
	SaveDevice(DeviceConfig) error
}
