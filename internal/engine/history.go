package engine

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// History is the bounded per-device telemetry window. Each device owns an
// independent shard with its own lock, so appends for different devices never
// contend. Eviction runs after every append; snapshots and eviction are
// mutually exclusive on a shard, so a Window call never observes a
// half-evicted state.
type History struct {
	logger   *slog.Logger
	horizon  time.Duration
	maxCount int
	now      func() time.Time

	mu     sync.RWMutex
	shards map[string]*historyShard
}

type historyShard struct {
	mu       sync.Mutex
	readings []Reading
}

// HistoryConfig bounds a History.
type HistoryConfig struct {
	Logger *slog.Logger
	// Horizon is how long readings are retained. Defaults to 7 days.
	Horizon time.Duration
	// MaxCount caps readings kept per device. Defaults to 1000.
	MaxCount int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewHistory creates an empty history with the given bounds.
func NewHistory(cfg HistoryConfig) *History {
	h := &History{
		logger:   cfg.Logger,
		horizon:  cfg.Horizon,
		maxCount: cfg.MaxCount,
		now:      cfg.Now,
		shards:   make(map[string]*historyShard),
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.horizon <= 0 {
		h.horizon = 7 * 24 * time.Hour
	}
	if h.maxCount <= 0 {
		h.maxCount = 1000
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Append inserts a reading in timestamp order and evicts anything outside the
// retention bounds. Readings older than the horizon are dropped with a
// StaleReadingError; out-of-order readings inside the horizon are inserted at
// their sorted position.
func (h *History) Append(r Reading) error {
	now := h.now()
	if r.Timestamp.Before(now.Add(-h.horizon)) {
		h.logger.Warn("rejected stale reading",
			"device_id", r.DeviceID,
			"timestamp", r.Timestamp,
			"horizon", h.horizon,
		)
		return &StaleReadingError{DeviceID: r.DeviceID, Timestamp: r.Timestamp, Horizon: h.horizon}
	}

	shard := h.shard(r.DeviceID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	n := len(shard.readings)
	if n == 0 || !r.Timestamp.Before(shard.readings[n-1].Timestamp) {
		shard.readings = append(shard.readings, r)
	} else {
		i := sort.Search(n, func(i int) bool {
			return shard.readings[i].Timestamp.After(r.Timestamp)
		})
		shard.readings = append(shard.readings, Reading{})
		copy(shard.readings[i+1:], shard.readings[i:])
		shard.readings[i] = r
	}

	shard.evict(now.Add(-h.horizon), h.maxCount)
	return nil
}

// Window returns an ordered copy of the readings within [now-d, now]. The
// returned slice is the caller's to keep; mutating it does not affect history.
func (h *History) Window(deviceID string, d time.Duration) []Reading {
	h.mu.RLock()
	shard, ok := h.shards[deviceID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	cutoff := h.now().Add(-d)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	i := sort.Search(len(shard.readings), func(i int) bool {
		return !shard.readings[i].Timestamp.Before(cutoff)
	})
	if i == len(shard.readings) {
		return nil
	}
	window := make([]Reading, len(shard.readings)-i)
	copy(window, shard.readings[i:])
	return window
}

// Recent returns up to n of the newest readings in chronological order.
func (h *History) Recent(deviceID string, n int) []Reading {
	h.mu.RLock()
	shard, ok := h.shards[deviceID]
	h.mu.RUnlock()
	if !ok || n <= 0 {
		return nil
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if n > len(shard.readings) {
		n = len(shard.readings)
	}
	recent := make([]Reading, n)
	copy(recent, shard.readings[len(shard.readings)-n:])
	return recent
}

// Len reports how many readings are held for a device.
func (h *History) Len(deviceID string) int {
	h.mu.RLock()
	shard, ok := h.shards[deviceID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return len(shard.readings)
}

// Sweep evicts expired readings for every device. Appends already evict; this
// catches devices that have gone quiet.
func (h *History) Sweep() int {
	h.mu.RLock()
	shards := make(map[string]*historyShard, len(h.shards))
	for id, s := range h.shards {
		shards[id] = s
	}
	h.mu.RUnlock()

	cutoff := h.now().Add(-h.horizon)
	evicted := 0
	for _, shard := range shards {
		shard.mu.Lock()
		before := len(shard.readings)
		shard.evict(cutoff, h.maxCount)
		evicted += before - len(shard.readings)
		shard.mu.Unlock()
	}
	return evicted
}

func (h *History) shard(deviceID string) *historyShard {
	h.mu.RLock()
	shard, ok := h.shards[deviceID]
	h.mu.RUnlock()
	if ok {
		return shard
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if shard, ok = h.shards[deviceID]; ok {
		return shard
	}
	shard = &historyShard{}
	h.shards[deviceID] = shard
	return shard
}

// evict drops entries older than cutoff, then trims from the front to
// maxCount. Caller holds the shard lock.
func (s *historyShard) evict(cutoff time.Time, maxCount int) {
	i := sort.Search(len(s.readings), func(i int) bool {
		return !s.readings[i].Timestamp.Before(cutoff)
	})
	if i > 0 {
		s.readings = append(s.readings[:0], s.readings[i:]...)
	}
	if len(s.readings) > maxCount {
		s.readings = append(s.readings[:0], s.readings[len(s.readings)-maxCount:]...)
	}
}
