package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smartaqua.dev/smartaqua/internal/engine"
)

// Query caps matching the limits the API exposes.
const (
	maxTelemetryResults = 100
	maxAlertResults     = 50
)

// Store is the persistence layer. It implements the engine's sink interfaces
// (readings, alerts, device registrations) and serves the historical queries
// behind the API.
type Store struct {
	logger *slog.Logger
	db     *gorm.DB
}

// NewStore creates a Store on an open database handle.
func NewStore(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Store{logger: logger, db: db}, nil
}

// SaveReading persists an accepted reading.
func (s *Store) SaveReading(r engine.Reading) error {
	record := &TelemetryRecord{
		DeviceID:     r.DeviceID,
		Timestamp:    r.Timestamp,
		LevelCm:      r.LevelCm,
		TankHeightCm: r.TankHeightCm,
		PercentFull:  r.PercentFull,
		FlowLMin:     r.FlowLMin,
		PumpState:    string(r.PumpState),
		TemperatureC: r.TemperatureC,
		TDSPpm:       r.TDSPpm,
		BatteryV:     r.BatteryV,
		LeakDetected: r.LeakDetected,
	}
	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to store reading: %w", err)
	}
	return nil
}

// SaveAlert persists a raised alert.
func (s *Store) SaveAlert(a engine.Alert) error {
	record := &AlertRecord{
		AlertID:     a.ID,
		DeviceID:    a.DeviceID,
		AlertType:   string(a.Type),
		Message:     a.Message,
		Severity:    string(a.Severity),
		Timestamp:   a.Timestamp,
		LevelCm:     a.LevelCm,
		PercentFull: a.PercentFull,
		Resolved:    a.Resolved,
	}
	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to store alert: %w", err)
	}
	return nil
}

// MarkAlertResolved flips the resolved flag on a stored alert.
func (s *Store) MarkAlertResolved(deviceID, alertID string) error {
	result := s.db.Model(&AlertRecord{}).
		Where("device_id = ? AND alert_id = ?", deviceID, alertID).
		Update("resolved", true)
	if result.Error != nil {
		return fmt.Errorf("failed to resolve alert: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return engine.ErrNotFound
	}
	return nil
}

// SaveDevice upserts a device registration keyed by device id.
func (s *Store) SaveDevice(cfg engine.DeviceConfig) error {
	record := &DeviceRecord{
		DeviceID:                 cfg.DeviceID,
		TankHeightCm:             cfg.TankHeightCm,
		TankDiameterCm:           cfg.TankDiameterCm,
		TankCapacityLiters:       cfg.TankCapacityLiters,
		LeakThresholdPercent:     cfg.LeakThresholdPercent,
		OverflowThresholdPercent: cfg.OverflowThresholdPercent,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tank_height_cm",
			"tank_diameter_cm",
			"tank_capacity_liters",
			"leak_threshold_percent",
			"overflow_threshold_percent",
		}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

// DeviceConfigs loads every registered device configuration.
func (s *Store) DeviceConfigs() ([]engine.DeviceConfig, error) {
	var records []DeviceRecord
	if err := s.db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}

	configs := make([]engine.DeviceConfig, 0, len(records))
	for _, r := range records {
		configs = append(configs, engine.DeviceConfig{
			DeviceID:                 r.DeviceID,
			TankHeightCm:             r.TankHeightCm,
			TankDiameterCm:           r.TankDiameterCm,
			TankCapacityLiters:       r.TankCapacityLiters,
			LeakThresholdPercent:     r.LeakThresholdPercent,
			OverflowThresholdPercent: r.OverflowThresholdPercent,
		})
	}
	return configs, nil
}

// RecentTelemetry returns stored readings for a device since the cutoff,
// newest first, capped at maxTelemetryResults.
func (s *Store) RecentTelemetry(deviceID string, since time.Time) ([]TelemetryRecord, error) {
	var records []TelemetryRecord
	err := s.db.
		Where("device_id = ? AND timestamp >= ?", deviceID, since).
		Order("timestamp DESC").
		Limit(maxTelemetryResults).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}
	return records, nil
}

// RecentAlerts returns stored alerts for a device newest first, optionally
// filtered by resolved state, capped at maxAlertResults.
func (s *Store) RecentAlerts(deviceID string, resolved *bool) ([]AlertRecord, error) {
	query := s.db.Where("device_id = ?", deviceID)
	if resolved != nil {
		query = query.Where("resolved = ?", *resolved)
	}

	var records []AlertRecord
	err := query.Order("timestamp DESC").Limit(maxAlertResults).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	return records, nil
}

// WarmEngine seeds an engine with persisted state: device configurations,
// readings inside the retention horizon, and the stored alert log. Called
// once at startup before the consumer starts.
func (s *Store) WarmEngine(e *engine.Engine, horizon time.Duration) error {
	configs, err := s.DeviceConfigs()
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		e.SetDeviceConfig(cfg)
	}

	var readings []TelemetryRecord
	err = s.db.
		Where("timestamp >= ?", time.Now().UTC().Add(-horizon)).
		Order("timestamp ASC").
		Find(&readings).Error
	if err != nil {
		return fmt.Errorf("failed to load telemetry for warm start: %w", err)
	}

	warm := make([]engine.Reading, 0, len(readings))
	for _, r := range readings {
		warm = append(warm, engine.Reading{
			DeviceID:     r.DeviceID,
			Timestamp:    r.Timestamp,
			LevelCm:      r.LevelCm,
			TankHeightCm: r.TankHeightCm,
			PercentFull:  r.PercentFull,
			FlowLMin:     r.FlowLMin,
			PumpState:    engine.PumpState(r.PumpState),
			TemperatureC: r.TemperatureC,
			TDSPpm:       r.TDSPpm,
			BatteryV:     r.BatteryV,
			LeakDetected: r.LeakDetected,
		})
	}
	e.WarmHistory(warm)

	var alerts []AlertRecord
	err = s.db.Order("timestamp ASC").Find(&alerts).Error
	if err != nil {
		return fmt.Errorf("failed to load alerts for warm start: %w", err)
	}

	warmAlerts := make([]engine.Alert, 0, len(alerts))
	for _, a := range alerts {
		warmAlerts = append(warmAlerts, engine.Alert{
			ID:          a.AlertID,
			DeviceID:    a.DeviceID,
			Type:        engine.AlertType(a.AlertType),
			Message:     a.Message,
			Severity:    engine.Severity(a.Severity),
			Timestamp:   a.Timestamp,
			LevelCm:     a.LevelCm,
			PercentFull: a.PercentFull,
			Resolved:    a.Resolved,
		})
	}
	e.WarmAlerts(warmAlerts)

	s.logger.Info("engine warm start completed",
		"devices", len(configs),
		"readings", len(readings),
		"alerts", len(alerts),
	)
	return nil
}
