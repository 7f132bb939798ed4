// Package simulator generates synthetic water tank telemetry and publishes
// it to the telemetry queue. It drives a small fleet of tanks through
// drain and refill cycles with occasional leak episodes so the full
// analysis pipeline can be exercised without hardware.
package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"smartaqua.dev/smartaqua/internal/engine"
)

// Pump hysteresis bounds, in percent full.
const (
	pumpOnBelowPct  = 30.0
	pumpOffAbovePct = 95.0
)

// Tank is one simulated device. It carries its physical configuration and
// the evolving water level between readings.
type Tank struct {
	DeviceID   string
	HeightCm   float64
	DiameterCm float64

	levelCm   float64
	pumpOn    bool
	leakSteps int // Remaining readings in the current leak episode

	drainRate  float64 // cm lost per reading while draining
	refillRate float64 // cm gained per reading while the pump runs
	leakChance float64
}

// NewTank creates a tank with randomized identity, geometry and starting
// level.
// Note: Uses math/rand for telemetry variation which is acceptable for
// simulation data.
func NewTank() *Tank {
	height := 120.0 + rand.Float64()*80 // #nosec G404 - weak random is acceptable for test data generation
	return &Tank{
		DeviceID:   fmt.Sprintf("tank-%s", gofakeit.LetterN(6)),
		HeightCm:   math.Round(height),
		DiameterCm: math.Round(80 + rand.Float64()*60),
		levelCm:    height * (0.4 + rand.Float64()*0.5),
		drainRate:  0.5 + rand.Float64()*1.5,
		refillRate: 4 + rand.Float64()*4,
		leakChance: 0.01,
	}
}

// Step advances the tank by one reading interval and returns the telemetry
// it would report at time t.
func (t *Tank) Step(now time.Time) engine.RawReading {
	// Occasionally start a leak episode lasting a handful of readings
	if t.leakSteps == 0 && rand.Float64() < t.leakChance {
		t.leakSteps = 5 + rand.Intn(10)
	}

	leaking := t.leakSteps > 0
	if leaking {
		t.leakSteps--
		// A leak drains regardless of the pump, and faster than usage
		t.levelCm -= t.drainRate * (2 + rand.Float64()*2)
	}

	if t.pumpOn {
		t.levelCm += t.refillRate * (0.8 + rand.Float64()*0.4)
	} else {
		t.levelCm -= t.drainRate * (0.5 + rand.Float64())
	}
	t.levelCm = math.Max(0, math.Min(t.HeightCm, t.levelCm))

	pct := t.levelCm / t.HeightCm * 100

	// Pump hysteresis
	if pct < pumpOnBelowPct {
		t.pumpOn = true
	} else if pct > pumpOffAbovePct {
		t.pumpOn = false
	}
	// A leak episode knocks the pump out so the detector's pump-off
	// precondition holds
	if leaking {
		t.pumpOn = false
	}

	pump := "OFF"
	flow := 0.0
	if t.pumpOn {
		pump = "ON"
		flow = 2 + rand.Float64()*2
	}

	temp := 22 + rand.Float64()*8
	tds := 200 + rand.Float64()*300
	battery := 3.4 + rand.Float64()*0.6

	// The device's own leak sensor only catches some episodes
	leakSensed := leaking && rand.Float64() < 0.3

	flowRounded := round2(flow)

	return engine.RawReading{
		DeviceID:     t.DeviceID,
		TS:           now.UTC().Format(time.RFC3339),
		LevelCm:      round1(t.levelCm),
		TankHeightCm: t.HeightCm,
		PercentFull:  round1(pct),
		FlowLMin:     &flowRounded,
		PumpState:    pump,
		TemperatureC: &temp,
		TDSPpm:       &tds,
		BatteryV:     &battery,
		LeakDetected: &leakSensed,
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
