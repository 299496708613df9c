package simulation

import (
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/config"
)

// Sensor types with dedicated value patterns.
const (
	TypeTemperature = "temperature"
	TypeHumidity    = "humidity"
	TypeAirQuality  = "air_quality"
	TypeNoise       = "noise_level"
	TypeLight       = "light_level"
	TypeMotion      = "motion_intensity"
	TypeGas         = "gas_level"
	TypePressure    = "pressure"
)

// SensorSpec describes one simulated sensor.
type SensorSpec struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Unit     string  `json:"unit"`
	Base     float64 `json:"base"`
	Variance float64 `json:"variance"`
	Location string  `json:"location"`
}

// SpecsFromConfig converts configured sensors to specs.
func SpecsFromConfig(sensors []config.SensorConfig) []SensorSpec {
	out := make([]SensorSpec, 0, len(sensors))
	for _, s := range sensors {
		out = append(out, SensorSpec{
			ID:       s.ID,
			Type:     s.Type,
			Unit:     s.Unit,
			Base:     s.Base,
			Variance: s.Variance,
			Location: s.Location,
		})
	}
	return out
}
