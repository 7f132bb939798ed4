package engine

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AlertManager owns the alert lifecycle for all devices. Alerts are only ever
// appended and marked resolved, never deleted; the log is an audit trail.
// Raise and Resolve on the same device are serialized; different devices
// proceed independently.
type AlertManager struct {
	logger   *slog.Logger
	cooldown time.Duration
	archiver AlertArchiver
	notifier Notifier
	now      func() time.Time

	mu     sync.RWMutex
	shards map[string]*alertShard
}

type alertShard struct {
	mu        sync.Mutex
	alerts    []Alert
	lastRaise map[AlertType]time.Time
}

// AlertManagerConfig configures an AlertManager. Archiver and Notifier are
// optional; a nil collaborator is skipped.
type AlertManagerConfig struct {
	Logger *slog.Logger
	// Cooldown suppresses repeat alerts of the same type for a device while a
	// condition persists. Zero disables suppression.
	Cooldown time.Duration
	Archiver AlertArchiver
	Notifier Notifier
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewAlertManager creates an AlertManager.
func NewAlertManager(cfg AlertManagerConfig) *AlertManager {
	m := &AlertManager{
		logger:   cfg.Logger,
		cooldown: cfg.Cooldown,
		archiver: cfg.Archiver,
		notifier: cfg.Notifier,
		now:      cfg.Now,
		shards:   make(map[string]*alertShard),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Raise records a new alert and hands a notification to the outbound
// collaborator. Every call creates a fresh alert instance; there is no
// cross-alert state transition. Archiver and notifier failures are logged and
// do not undo the alert.
func (m *AlertManager) Raise(a Alert) Alert {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = m.now()
	}
	a.Resolved = false

	shard := m.shard(a.DeviceID)
	shard.mu.Lock()
	shard.alerts = append(shard.alerts, a)
	shard.lastRaise[a.Type] = a.Timestamp
	shard.mu.Unlock()

	m.logger.Warn("alert raised",
		"device_id", a.DeviceID,
		"alert_type", a.Type,
		"severity", a.Severity,
		"message", a.Message,
	)

	if m.archiver != nil {
		if err := m.archiver.SaveAlert(a); err != nil {
			m.logger.Error("failed to archive alert", "alert_id", a.ID, "error", err)
		}
	}
	if m.notifier != nil {
		m.notifier.Notify(Notification{
			DeviceID:  a.DeviceID,
			AlertType: a.Type,
			Message:   a.Message,
			Severity:  a.Severity,
			Timestamp: a.Timestamp,
		})
	}
	return a
}

// InCooldown reports whether an alert of this type fired for the device
// within the cooldown window. The caller checks this before Raise;
// device-originated alert events bypass it.
func (m *AlertManager) InCooldown(deviceID string, t AlertType) bool {
	if m.cooldown <= 0 {
		return false
	}
	shard := m.shard(deviceID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	last, ok := shard.lastRaise[t]
	return ok && m.now().Sub(last) < m.cooldown
}

// Resolve marks an alert resolved. Resolving an already-resolved alert is a
// no-op; it never un-resolves. Returns ErrNotFound when no alert with that id
// exists for the device.
func (m *AlertManager) Resolve(deviceID, alertID string) error {
	shard := m.shard(deviceID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	for i := range shard.alerts {
		if shard.alerts[i].ID != alertID {
			continue
		}
		if shard.alerts[i].Resolved {
			return nil
		}
		shard.alerts[i].Resolved = true

		if m.archiver != nil {
			if err := m.archiver.MarkAlertResolved(deviceID, alertID); err != nil {
				m.logger.Error("failed to archive alert resolution",
					"alert_id", alertID, "error", err)
			}
		}
		return nil
	}
	return ErrNotFound
}

// List returns a device's alerts newest-first, optionally filtered by
// resolved state and capped at limit (0 means no cap).
func (m *AlertManager) List(deviceID string, resolved *bool, limit int) []Alert {
	shard := m.shard(deviceID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	list := make([]Alert, 0, len(shard.alerts))
	for i := len(shard.alerts) - 1; i >= 0; i-- {
		a := shard.alerts[i]
		if resolved != nil && a.Resolved != *resolved {
			continue
		}
		list = append(list, a)
		if limit > 0 && len(list) == limit {
			break
		}
	}
	return list
}

// Preload seeds the manager with previously persisted alerts, oldest first.
// It records no cooldown state and triggers no side effects.
func (m *AlertManager) Preload(alerts []Alert) {
	byDevice := make(map[string][]Alert)
	for _, a := range alerts {
		byDevice[a.DeviceID] = append(byDevice[a.DeviceID], a)
	}
	for deviceID, list := range byDevice {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Timestamp.Before(list[j].Timestamp)
		})
		shard := m.shard(deviceID)
		shard.mu.Lock()
		shard.alerts = append(shard.alerts, list...)
		shard.mu.Unlock()
	}
}

func (m *AlertManager) shard(deviceID string) *alertShard {
	m.mu.RLock()
	shard, ok := m.shards[deviceID]
	m.mu.RUnlock()
	if ok {
		return shard
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if shard, ok = m.shards[deviceID]; ok {
		return shard
	}
	shard = &alertShard{lastRaise: make(map[AlertType]time.Time)}
	m.shards[deviceID] = shard
	return shard
}
