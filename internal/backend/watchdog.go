package backend

import (
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"smartaqua.dev/smartaqua/internal/engine"
)

// Watchdog runs the periodic maintenance jobs: evicting expired history for
// idle devices and raising offline alerts for devices that stopped
// reporting.
type Watchdog struct {
	logger       *slog.Logger
	engine       *engine.Engine
	cron         *cron.Cron
	schedule     string
	offlineAfter time.Duration
}

// WatchdogConfig holds the configuration for the Watchdog.
type WatchdogConfig struct {
	Logger *slog.Logger
	Engine *engine.Engine
	// Schedule is a cron expression. Defaults to hourly.
	Schedule string
	// OfflineAfter is how long a device may stay silent before an offline
	// alert is raised. Defaults to one hour.
	OfflineAfter time.Duration
}

// NewWatchdog creates a new Watchdog instance.
func NewWatchdog(cfg *WatchdogConfig) (*Watchdog, error) {
	if cfg == nil {
		return nil, errors.New("watchdog config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Engine == nil {
		return nil, errors.New("engine cannot be nil")
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "0 * * * *"
	}

	offlineAfter := cfg.OfflineAfter
	if offlineAfter <= 0 {
		offlineAfter = time.Hour
	}

	return &Watchdog{
		logger:       cfg.Logger,
		engine:       cfg.Engine,
		cron:         cron.New(),
		schedule:     schedule,
		offlineAfter: offlineAfter,
	}, nil
}

// Start registers the maintenance job and starts the scheduler.
func (w *Watchdog) Start() error {
	if _, err := w.cron.AddFunc(w.schedule, w.run); err != nil {
		return err
	}
	w.cron.Start()
	w.logger.Info("watchdog started", "schedule", w.schedule, "offline_after", w.offlineAfter)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (w *Watchdog) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.logger.Info("watchdog stopped")
}

// run executes one maintenance pass.
func (w *Watchdog) run() {
	evicted := w.engine.SweepHistory()
	offline := w.engine.RaiseOfflineAlerts(w.offlineAfter)
	w.logger.Info("maintenance pass completed",
		"evicted_readings", evicted,
		"offline_devices", offline,
	)
}
