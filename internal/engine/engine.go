package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"smartaqua.dev/smartaqua/pkg/metrics"
)

// predictionWindow is the span of history the predictor works over.
const predictionWindow = 7 * 24 * time.Hour

// TankDefaults is the geometry applied to devices that report before any
// configuration is registered for them.
type TankDefaults struct {
	HeightCm             float64
	DiameterCm           float64
	CapacityLiters       float64
	LeakThresholdPercent float64
	OverflowThresholdPct float64
}

// Engine is the telemetry analysis pipeline. One accepted reading flows
// through normalization, history, the status cache, prediction, leak
// detection and alert evaluation. Per-device state is serialized behind a
// per-device lock; readings for different devices are processed in parallel.
type Engine struct {
	logger   *slog.Logger
	history  *History
	status   *StatusCache
	alerts   *AlertManager
	sink     ReadingSink
	devices  DeviceSink
	defaults TankDefaults
	metrics  *metrics.EngineMetrics // Optional metrics
	now      func() time.Time

	cfgMu   sync.RWMutex
	configs map[string]DeviceConfig

	lockMu   sync.Mutex
	devLocks map[string]*sync.Mutex
}

// Config assembles an Engine. Collaborators (sinks, notifier, metrics) are
// optional and skipped when nil.
type Config struct {
	Logger *slog.Logger

	// RetentionHorizon bounds history by age. Defaults to 7 days.
	RetentionHorizon time.Duration
	// MaxHistory bounds history by count per device. Defaults to 1000.
	MaxHistory int
	// AlertCooldown suppresses repeats of the same alert type per device.
	// Zero disables suppression.
	AlertCooldown time.Duration
	// Defaults is the tank geometry for devices without registered config.
	Defaults TankDefaults

	Notifier      Notifier
	ReadingSink   ReadingSink
	DeviceSink    DeviceSink
	AlertArchiver AlertArchiver
	Metrics       *metrics.EngineMetrics

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New creates an Engine.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	defaults := cfg.Defaults
	if defaults.HeightCm <= 0 {
		defaults.HeightCm = 150
	}
	if defaults.DiameterCm <= 0 {
		defaults.DiameterCm = 100
	}
	if defaults.CapacityLiters <= 0 {
		defaults.CapacityLiters = 1178
	}
	if defaults.LeakThresholdPercent <= 0 {
		defaults.LeakThresholdPercent = 1
	}
	if defaults.OverflowThresholdPct <= 0 {
		defaults.OverflowThresholdPct = 95
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		logger: cfg.Logger,
		history: NewHistory(HistoryConfig{
			Logger:   cfg.Logger,
			Horizon:  cfg.RetentionHorizon,
			MaxCount: cfg.MaxHistory,
			Now:      now,
		}),
		status: NewStatusCache(),
		alerts: NewAlertManager(AlertManagerConfig{
			Logger:   cfg.Logger,
			Cooldown: cfg.AlertCooldown,
			Archiver: cfg.AlertArchiver,
			Notifier: cfg.Notifier,
			Now:      now,
		}),
		sink:     cfg.ReadingSink,
		devices:  cfg.DeviceSink,
		defaults: defaults,
		metrics:  cfg.Metrics,
		now:      now,
		configs:  make(map[string]DeviceConfig),
		devLocks: make(map[string]*sync.Mutex),
	}
	return e, nil
}

// Ingest runs one raw reading through the full pipeline. Validation and
// staleness failures affect only that reading; the returned error tells the
// transport whether the reading was rejected (and can be dropped) rather
// than signalling an engine fault.
func (e *Engine) Ingest(raw RawReading) error {
	var timer *prometheus.Timer
	if e.metrics != nil {
		timer = prometheus.NewTimer(e.metrics.IngestDuration)
		defer timer.ObserveDuration()
	}

	cfg, known := e.DeviceConfig(raw.DeviceID)
	var cfgPtr *DeviceConfig
	if known {
		cfgPtr = &cfg
	}

	reading, err := Normalize(raw, cfgPtr, e.defaults.HeightCm)
	if err != nil {
		e.logger.Warn("rejected invalid reading", "device_id", raw.DeviceID, "error", err)
		if e.metrics != nil {
			e.metrics.ReadingsTotal.WithLabelValues("rejected_invalid").Inc()
		}
		return err
	}

	lock := e.deviceLock(reading.DeviceID)
	lock.Lock()
	defer lock.Unlock()

	cfg = e.ensureDevice(reading.DeviceID)

	if err := e.history.Append(reading); err != nil {
		if e.metrics != nil {
			e.metrics.ReadingsTotal.WithLabelValues("rejected_stale").Inc()
		}
		return err
	}

	e.status.Update(reading)

	if e.sink != nil {
		if err := e.sink.SaveReading(reading); err != nil {
			e.logger.Error("failed to persist reading",
				"device_id", reading.DeviceID, "error", err)
		}
	}

	window := e.history.Window(reading.DeviceID, predictionWindow)
	summary := Predict(window, cfg, reading.PercentFull, e.now())
	e.status.ApplyPrediction(reading.DeviceID, summary)

	leak := DetectLeak(e.history.Recent(reading.DeviceID, leakScanWindow), &cfg)
	if leak != nil && e.metrics != nil {
		e.metrics.LeakSignals.Inc()
	}

	e.evaluateAlerts(reading, leak, cfg)

	if e.metrics != nil {
		e.metrics.ReadingsTotal.WithLabelValues("accepted").Inc()
		e.metrics.DevicesTracked.Set(float64(e.status.Len()))
	}
	e.logger.Debug("reading processed",
		"device_id", reading.DeviceID,
		"percent_full", reading.PercentFull,
	)
	return nil
}

// evaluateAlerts applies the threshold policy to an accepted reading. Each
// qualifying condition raises its own alert; the cooldown window suppresses
// repeats of a type while its condition persists.
func (e *Engine) evaluateAlerts(r Reading, leak *LeakSignal, cfg DeviceConfig) {
	switch {
	case r.PercentFull <= 20:
		e.raise(r, AlertLowWater, SeverityHigh,
			fmt.Sprintf("CRITICAL: Tank only %.1f%% full!", r.PercentFull))
	case r.PercentFull <= 40:
		e.raise(r, AlertLowWater, SeverityMedium,
			fmt.Sprintf("WARNING: Tank %.1f%% full - refill soon", r.PercentFull))
	}

	if leak != nil {
		e.raise(r, AlertLeak, SeverityHigh,
			fmt.Sprintf("Unexpected level drop of %.1f%% detected", leak.PercentDrop))
	}
	if r.LeakDetected {
		e.raise(r, AlertLeak, SeverityHigh,
			"LEAK DETECTED: Check for water leaks immediately!")
	}

	if r.PumpState == PumpOn && r.FlowLMin < 0.1 {
		e.raise(r, AlertPumpFault, SeverityHigh,
			"PUMP FAULT: Pump running but no flow detected")
	}

	if r.TDSPpm > 1000 {
		e.raise(r, AlertWaterQuality, SeverityMedium,
			fmt.Sprintf("Water quality alert: TDS %.0f ppm (above 1000 ppm threshold)", r.TDSPpm))
	}

	if cfg.OverflowThresholdPercent > 0 && r.PercentFull >= cfg.OverflowThresholdPercent {
		e.raise(r, AlertOverflow, SeverityMedium,
			fmt.Sprintf("Tank at %.1f%% - overflow risk", r.PercentFull))
	}
}

func (e *Engine) raise(r Reading, t AlertType, sev Severity, msg string) {
	if e.alerts.InCooldown(r.DeviceID, t) {
		if e.metrics != nil {
			e.metrics.AlertsSuppressed.Inc()
		}
		e.logger.Debug("alert suppressed by cooldown", "device_id", r.DeviceID, "alert_type", t)
		return
	}
	e.alerts.Raise(Alert{
		DeviceID:    r.DeviceID,
		Type:        t,
		Severity:    sev,
		Message:     msg,
		Timestamp:   r.Timestamp,
		LevelCm:     r.LevelCm,
		PercentFull: r.PercentFull,
	})
	if e.metrics != nil {
		e.metrics.AlertsRaised.WithLabelValues(string(t), string(sev)).Inc()
	}
}

// RecordDeviceAlert stores an alert event pre-classified by the device
// itself. These bypass the threshold policy and the cooldown window.
func (e *Engine) RecordDeviceAlert(a Alert) Alert {
	stored := e.alerts.Raise(a)
	if e.metrics != nil {
		e.metrics.AlertsRaised.WithLabelValues(string(stored.Type), string(stored.Severity)).Inc()
	}
	return stored
}

// Status returns the current snapshot for a device.
func (e *Engine) Status(deviceID string) (DeviceStatus, error) {
	return e.status.Get(deviceID)
}

// Statuses returns snapshots for every known device.
func (e *Engine) Statuses() []DeviceStatus {
	return e.status.All()
}

// Window returns a device's readings within the trailing duration.
func (e *Engine) Window(deviceID string, d time.Duration) []Reading {
	return e.history.Window(deviceID, d)
}

// Predictions projects consumption for the next N days from the device's
// current 7-day window.
func (e *Engine) Predictions(deviceID string, days int) ([]DailyForecast, error) {
	status, err := e.status.Get(deviceID)
	if err != nil {
		return nil, err
	}
	cfg := e.ensureDevice(deviceID)
	summary := Predict(e.history.Window(deviceID, predictionWindow), cfg, status.PercentFull, e.now())
	return Forecast(summary, days, e.now()), nil
}

// Alerts lists a device's alerts newest-first.
func (e *Engine) Alerts(deviceID string, resolved *bool, limit int) []Alert {
	return e.alerts.List(deviceID, resolved, limit)
}

// ResolveAlert marks an alert resolved.
func (e *Engine) ResolveAlert(deviceID, alertID string) error {
	return e.alerts.Resolve(deviceID, alertID)
}

// SetDeviceConfig registers or replaces a device's configuration.
func (e *Engine) SetDeviceConfig(cfg DeviceConfig) {
	e.cfgMu.Lock()
	e.configs[cfg.DeviceID] = cfg
	e.cfgMu.Unlock()
}

// DeviceConfig returns the registered configuration for a device.
func (e *Engine) DeviceConfig(deviceID string) (DeviceConfig, bool) {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	cfg, ok := e.configs[deviceID]
	return cfg, ok
}

// WarmHistory seeds the history window from persisted readings, oldest
// first, without running analysis or persistence side effects.
func (e *Engine) WarmHistory(readings []Reading) {
	for _, r := range readings {
		if err := e.history.Append(r); err != nil {
			continue
		}
		e.status.Update(r)
	}
}

// WarmAlerts seeds the alert log from persisted alerts.
func (e *Engine) WarmAlerts(alerts []Alert) {
	e.alerts.Preload(alerts)
}

// SweepHistory evicts expired readings for devices that have gone quiet.
// Called periodically by the watchdog.
func (e *Engine) SweepHistory() int {
	evicted := e.history.Sweep()
	if evicted > 0 && e.metrics != nil {
		e.metrics.HistoryEvictions.Add(float64(evicted))
	}
	return evicted
}

// RaiseOfflineAlerts flags devices that have not reported within
// offlineAfter. Repeats are suppressed by the cooldown window.
func (e *Engine) RaiseOfflineAlerts(offlineAfter time.Duration) int {
	raised := 0
	cutoff := e.now().Add(-offlineAfter)
	for _, status := range e.status.All() {
		if status.LastUpdate.After(cutoff) {
			continue
		}
		if e.alerts.InCooldown(status.DeviceID, AlertOther) {
			continue
		}
		e.alerts.Raise(Alert{
			DeviceID: status.DeviceID,
			Type:     AlertOther,
			Severity: SeverityLow,
			Message: fmt.Sprintf("Device offline: no reading since %s",
				status.LastUpdate.Format(time.RFC3339)),
			Timestamp:   e.now(),
			LevelCm:     status.LevelCm,
			PercentFull: status.PercentFull,
		})
		if e.metrics != nil {
			e.metrics.AlertsRaised.WithLabelValues(string(AlertOther), string(SeverityLow)).Inc()
		}
		raised++
	}
	return raised
}

// ensureDevice returns the device's configuration, registering the default
// geometry for first-seen devices. New registrations are handed to the
// device sink for persistence.
func (e *Engine) ensureDevice(deviceID string) DeviceConfig {
	e.cfgMu.RLock()
	cfg, ok := e.configs[deviceID]
	e.cfgMu.RUnlock()
	if ok {
		return cfg
	}

	cfg = DeviceConfig{
		DeviceID:                 deviceID,
		TankHeightCm:             e.defaults.HeightCm,
		TankDiameterCm:           e.defaults.DiameterCm,
		TankCapacityLiters:       e.defaults.CapacityLiters,
		LeakThresholdPercent:     e.defaults.LeakThresholdPercent,
		OverflowThresholdPercent: e.defaults.OverflowThresholdPct,
	}

	e.cfgMu.Lock()
	if existing, ok := e.configs[deviceID]; ok {
		e.cfgMu.Unlock()
		return existing
	}
	e.configs[deviceID] = cfg
	e.cfgMu.Unlock()

	e.logger.Info("registered new device with default geometry", "device_id", deviceID)
	if e.devices != nil {
		if err := e.devices.SaveDevice(cfg); err != nil {
			e.logger.Error("failed to persist device registration",
				"device_id", deviceID, "error", err)
		}
	}
	return cfg
}

func (e *Engine) deviceLock(deviceID string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	lock, ok := e.devLocks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		e.devLocks[deviceID] = lock
	}
	return lock
}
