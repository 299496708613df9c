package alert

import (
	"time"

	"github.com/nerrad567/laurabot-hal/internal/infrastructure/config"
)

// Severity is a sensor's alarm level.
type Severity string

// Severity levels, lowest first.
const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities (normal is 0).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Range is an inclusive value interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether Min <= v <= Max.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Threshold is the static alarm configuration for one sensor type.
type Threshold struct {
	SensorType string `json:"sensor_type"`
	Warning    Range  `json:"warning"`
	Critical   Range  `json:"critical"`
}

// Classify returns the severity of v. Critical is checked first.
func (t Threshold) Classify(v float64) Severity {
	switch {
	case t.Critical.Contains(v):
		return SeverityCritical
	case t.Warning.Contains(v):
		return SeverityWarning
	default:
		return SeverityNormal
	}
}

// ThresholdsFromConfig converts configured thresholds.
func ThresholdsFromConfig(cfg []config.ThresholdConfig) []Threshold {
	out := make([]Threshold, 0, len(cfg))
	for _, t := range cfg {
		out = append(out, Threshold{
			SensorType: t.SensorType,
			Warning:    Range{Min: t.Warning.Min, Max: t.Warning.Max},
			Critical:   Range{Min: t.Critical.Min, Max: t.Critical.Max},
		})
	}
	return out
}

// Alert is raised when a sensor moves to a higher severity.
type Alert struct {
	ID         string    `json:"id"`
	SensorID   string    `json:"sensor_id"`
	SensorType string    `json:"sensor_type"`
	Location   string    `json:"location"`
	Severity   Severity  `json:"severity"`
	Previous   Severity  `json:"previous"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
}

// Recovery is recorded when a sensor moves to a lower severity.
type Recovery struct {
	ID         string    `json:"id"`
	SensorID   string    `json:"sensor_id"`
	SensorType string    `json:"sensor_type"`
	From       Severity  `json:"from"`
	To         Severity  `json:"to"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stats summarises evaluator activity.
type Stats struct {
	TotalAlerts    uint64 `json:"total_alerts"`
	CriticalAlerts uint64 `json:"critical_alerts"`
	WarningAlerts  uint64 `json:"warning_alerts"`
	Recoveries     uint64 `json:"recoveries"`
	SensorsInAlarm int    `json:"sensors_in_alarm"`
}
