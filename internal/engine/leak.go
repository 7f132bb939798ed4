package engine

// LeakSignal is a heuristic detection of an unexpected level drop while the
// pump was off. It carries the triggering reading's level and percent-full.
type LeakSignal struct {
	DeviceID    string
	LevelCm     float64
	PercentFull float64
	PercentDrop float64
}

// leakScanWindow is how many trailing readings the detector inspects.
const leakScanWindow = 10

// DetectLeak scans up to the last 10 readings, newest first, for an adjacent
// pair where both readings report the pump OFF and the newer level is
// strictly below the older one. The first pair whose drop exceeds the
// device's leak threshold wins; later pairs are not inspected. Pump state
// self-reporting is trusted as ground truth, so this is a heuristic, not a
// guarantee.
//
// recent must be in chronological order. A nil config, a window shorter than
// two readings, or no qualifying pair yields no signal.
func DetectLeak(recent []Reading, cfg *DeviceConfig) *LeakSignal {
	if cfg == nil || len(recent) < 2 || cfg.TankHeightCm <= 0 {
		return nil
	}
	if len(recent) > leakScanWindow {
		recent = recent[len(recent)-leakScanWindow:]
	}

	for i := len(recent) - 1; i > 0; i-- {
		newer := recent[i]
		older := recent[i-1]

		if newer.PumpState != PumpOff || older.PumpState != PumpOff {
			continue
		}
		if newer.LevelCm >= older.LevelCm {
			continue
		}

		drop := (older.LevelCm - newer.LevelCm) / cfg.TankHeightCm * 100
		if drop > cfg.LeakThresholdPercent {
			return &LeakSignal{
				DeviceID:    newer.DeviceID,
				LevelCm:     newer.LevelCm,
				PercentFull: newer.PercentFull,
				PercentDrop: drop,
			}
		}
	}
	return nil
}
