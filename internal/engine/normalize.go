package engine

import (
	"math"
	"strings"
	"time"
)

// Timestamp layouts accepted from devices. Firmware older than 2.x sends
// naive local timestamps without a zone offset.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Normalize validates a raw payload and produces a normalized Reading.
//
// Percent-full is always recomputed from level and height, never trusted from
// the source. Absent optional sensors are filled with deterministic fallbacks
// pinned to percent-full, so defaults move consistently with tank level:
//
//	temperature = 25 + (pct-50) * 0.1  °C
//	flow        = max(0, 2.5 - |pct-50| * 0.05)  L/min
//	pump        = ON if pct < 80, else OFF
//	tds         = 150 + (pct-50) * 2  ppm
//	battery     = 3.7 V
//
// When the payload carries no tank height, the device config height is used;
// defaultHeight applies only for devices with no known config. Normalize is a
// pure transform with no side effects.
func Normalize(raw RawReading, cfg *DeviceConfig, defaultHeight float64) (Reading, error) {
	if strings.TrimSpace(raw.DeviceID) == "" {
		return Reading{}, &ValidationError{Field: "device_id", Reason: "is empty"}
	}

	ts, err := parseTimestamp(raw.TS)
	if err != nil {
		return Reading{}, &ValidationError{Field: "ts", Reason: "cannot be parsed"}
	}

	if raw.LevelCm < 0 {
		return Reading{}, &ValidationError{Field: "level_cm", Reason: "is negative"}
	}
	if raw.TankHeightCm < 0 {
		return Reading{}, &ValidationError{Field: "tank_height_cm", Reason: "is negative"}
	}

	height := raw.TankHeightCm
	if height == 0 {
		if cfg != nil && cfg.TankHeightCm > 0 {
			height = cfg.TankHeightCm
		} else {
			height = defaultHeight
		}
	}

	pct := 0.0
	if height > 0 {
		pct = clamp(raw.LevelCm/height*100, 0, 100)
	}

	pump, err := normalizePump(raw.PumpState, pct)
	if err != nil {
		return Reading{}, err
	}

	r := Reading{
		DeviceID:     raw.DeviceID,
		Timestamp:    ts.UTC(),
		LevelCm:      raw.LevelCm,
		TankHeightCm: height,
		PercentFull:  pct,
		PumpState:    pump,
		FlowLMin:     math.Max(0, 2.5-math.Abs(pct-50)*0.05),
		TemperatureC: 25 + (pct-50)*0.1,
		TDSPpm:       150 + (pct-50)*2,
		BatteryV:     3.7,
	}

	if raw.FlowLMin != nil {
		if *raw.FlowLMin < 0 {
			return Reading{}, &ValidationError{Field: "flow_l_min", Reason: "is negative"}
		}
		r.FlowLMin = *raw.FlowLMin
	}
	if raw.TemperatureC != nil {
		r.TemperatureC = *raw.TemperatureC
	}
	if raw.TDSPpm != nil {
		r.TDSPpm = *raw.TDSPpm
	}
	if raw.BatteryV != nil {
		r.BatteryV = *raw.BatteryV
	}
	if raw.LeakDetected != nil {
		r.LeakDetected = *raw.LeakDetected
	}

	return r, nil
}

func normalizePump(state string, pct float64) (PumpState, error) {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case "ON":
		return PumpOn, nil
	case "OFF":
		return PumpOff, nil
	case "":
		// Fallback mirrors device firmware: pump runs while the tank is low.
		if pct < 80 {
			return PumpOn, nil
		}
		return PumpOff, nil
	default:
		return "", &ValidationError{Field: "pump_state", Reason: "is not ON or OFF"}
	}
}

func parseTimestamp(ts string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, ts)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
