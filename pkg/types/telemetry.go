package types

import (
	"math"
	"time"
)

const (
	MinBatteryLevel = 0
	MaxBatteryLevel = 100
)

// Telemetry is a single sensor reading reported by the installation. The JSON
// field names match what the device firmware posts.
type Telemetry struct {
	Timestamp        time.Time `json:"timestamp"`
	Voltage          float64   `json:"voltage"`
	Current          float64   `json:"current"`
	BatteryLevel     int       `json:"batteryLevel"`
	PowerConsumption float64   `json:"power"`

	// environmental readings, informational only
	Temperature      float64 `json:"temperature,omitempty"`
	Humidity         float64 `json:"humidity,omitempty"`
	TotalConsumption float64 `json:"totalConsumption,omitempty"`
	EnergyRemain     float64 `json:"energyRemain,omitempty"`
}

// Validate rejects readings that cannot have come from a working sensor.
// Values are never clamped.
func (t Telemetry) Validate() error {
	checks := []struct {
		field string
		value float64
	}{
		{"voltage", t.Voltage},
		{"current", t.Current},
		{"power", t.PowerConsumption},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return InvalidInput(c.field, "must be a finite number")
		}
		if c.value < 0 {
			return InvalidInput(c.field, "must not be negative (got %v)", c.value)
		}
	}
	if t.BatteryLevel < MinBatteryLevel || t.BatteryLevel > MaxBatteryLevel {
		return InvalidInput("batteryLevel", "must be between %d and %d (got %d)", MinBatteryLevel, MaxBatteryLevel, t.BatteryLevel)
	}
	return nil
}
