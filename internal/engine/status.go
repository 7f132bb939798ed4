package engine

import (
	"sort"
	"sync"
)

// StatusCache holds the latest-known snapshot per device. Updates are
// last-writer-wins; once Update returns, every Get observes that value or a
// later one.
type StatusCache struct {
	mu       sync.RWMutex
	statuses map[string]DeviceStatus
}

// NewStatusCache creates an empty status cache.
func NewStatusCache() *StatusCache {
	return &StatusCache{statuses: make(map[string]DeviceStatus)}
}

// Update overwrites the snapshot for a device with the given reading,
// preserving previously computed prediction fields until the predictor
// refreshes them.
func (c *StatusCache) Update(r Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, known := c.statuses[r.DeviceID]
	status := DeviceStatus{
		DeviceID:     r.DeviceID,
		LevelCm:      r.LevelCm,
		PercentFull:  r.PercentFull,
		FlowLMin:     r.FlowLMin,
		PumpState:    r.PumpState,
		TemperatureC: r.TemperatureC,
		TDSPpm:       r.TDSPpm,
		BatteryV:     r.BatteryV,
		LastUpdate:   r.Timestamp,
	}
	if known {
		status.DaysUntilEmpty = prev.DaysUntilEmpty
		status.ConsumptionTodayL = prev.ConsumptionTodayL
		status.ConsumptionWeekL = prev.ConsumptionWeekL
	}
	c.statuses[r.DeviceID] = status
}

// ApplyPrediction stores freshly computed consumption figures on a device's
// snapshot. Unknown devices are ignored.
func (c *StatusCache) ApplyPrediction(deviceID string, s ConsumptionSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.statuses[deviceID]
	if !ok {
		return
	}
	today := s.TodayLiters
	week := s.WeekLiters
	status.ConsumptionTodayL = &today
	status.ConsumptionWeekL = &week
	status.DaysUntilEmpty = nil
	if s.DaysUntilEmpty != nil {
		days := *s.DaysUntilEmpty
		status.DaysUntilEmpty = &days
	}
	c.statuses[deviceID] = status
}

// Get returns the current snapshot for a device, or ErrNotFound.
func (c *StatusCache) Get(deviceID string) (DeviceStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status, ok := c.statuses[deviceID]
	if !ok {
		return DeviceStatus{}, ErrNotFound
	}
	return status, nil
}

// All returns snapshots for every known device, ordered by device id.
func (c *StatusCache) All() []DeviceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := make([]DeviceStatus, 0, len(c.statuses))
	for _, s := range c.statuses {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].DeviceID < all[j].DeviceID })
	return all
}

// Len reports how many devices are tracked.
func (c *StatusCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.statuses)
}
