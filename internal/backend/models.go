// Package backend provides the backend service: it consumes tank telemetry
// from RabbitMQ, runs it through the analysis engine, persists readings and
// alerts to PostgreSQL, and serves the REST API.
package backend

import (
	"time"
)

// TelemetryRecord is one stored sensor reading.
type TelemetryRecord struct {
	ID           uint      `gorm:"primaryKey"`
	DeviceID     string    `gorm:"index:idx_device_timestamp;not null"`
	Timestamp    time.Time `gorm:"index:idx_device_timestamp;index:idx_timestamp;not null"`
	LevelCm      float64   `gorm:"not null"`
	TankHeightCm float64   `gorm:"not null"`
	PercentFull  float64   `gorm:"not null"`
	FlowLMin     float64   `gorm:"not null"`
	PumpState    string    `gorm:"not null"`
	TemperatureC float64   `gorm:"not null"`
	TDSPpm       float64   `gorm:"not null"`
	BatteryV     float64   `gorm:"default:0"`
	LeakDetected bool      `gorm:"default:false"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for TelemetryRecord.
func (TelemetryRecord) TableName() string {
	return "telemetry"
}

// AlertRecord is one stored alert. Rows are never deleted; resolution flips
// the resolved flag.
type AlertRecord struct {
	ID          uint      `gorm:"primaryKey"`
	AlertID     string    `gorm:"uniqueIndex;not null"`
	DeviceID    string    `gorm:"index;not null"`
	AlertType   string    `gorm:"not null"`
	Message     string    `gorm:"not null"`
	Severity    string    `gorm:"default:medium"`
	Timestamp   time.Time `gorm:"index;not null"`
	LevelCm     float64   `gorm:"not null"`
	PercentFull float64   `gorm:"not null"`
	Resolved    bool      `gorm:"default:false"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for AlertRecord.
func (AlertRecord) TableName() string {
	return "alerts"
}

// DeviceRecord is a registered tank device with its physical configuration.
type DeviceRecord struct {
	ID                       uint      `gorm:"primaryKey"`
	DeviceID                 string    `gorm:"uniqueIndex;not null"`
	TankHeightCm             float64   `gorm:"default:150"`
	TankDiameterCm           float64   `gorm:"default:100"`
	TankCapacityLiters       float64   `gorm:"default:1178"`
	LeakThresholdPercent     float64   `gorm:"default:1.0"`
	OverflowThresholdPercent float64   `gorm:"default:95.0"`
	CreatedAt                time.Time `gorm:"autoCreateTime"`
	UpdatedAt                time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for DeviceRecord.
func (DeviceRecord) TableName() string {
	return "devices"
}
