package hal

import "time"

// Reading origins.
const (
	SourceSimulated = "simulated"
	SourceExternal  = "external"
)

// SensorReading is a single immutable sample from a physical or simulated sensor.
type SensorReading struct {
	SensorID  string    `json:"sensor_id"`
	Type      string    `json:"type"`
	Unit      string    `json:"unit"`
	Value     float64   `json:"value"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}
