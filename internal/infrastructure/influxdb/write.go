package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// Measurement names.
const (
	MeasurementSensor   = "sensor_readings"
	MeasurementAlert    = "sensor_alerts"
	MeasurementRecovery = "sensor_recoveries"
	MeasurementCommand  = "hardware_commands"
)

// AlertPoint is the subset of an alert stored in InfluxDB.
type AlertPoint struct {
	SensorID   string
	SensorType string
	Location   string
	Severity   string
	Previous   string
	Value      float64
	Message    string
	Timestamp  time.Time
}

// WriteSensorReading records one reading, simulated or external.
//
// Tags carry the sensor identity and origin so dashboards can separate
// simulated from live data. The reading's own timestamp is used.
func (c *Client) WriteSensorReading(r hal.SensorReading) {
	c.enqueue(sensorPoint(r))
}

func sensorPoint(r hal.SensorReading) *write.Point {
	return write.NewPoint(
		MeasurementSensor,
		map[string]string{
			"sensor_id":   r.SensorID,
			"sensor_type": r.Type,
			"location":    r.Location,
			"unit":        r.Unit,
			"source":      r.Source,
		},
		map[string]interface{}{
			"value": r.Value,
		},
		r.Timestamp,
	)
}

// WriteAlert records a raised alert.
func (c *Client) WriteAlert(a AlertPoint) {
	c.enqueue(write.NewPoint(
		MeasurementAlert,
		map[string]string{
			"sensor_id":   a.SensorID,
			"sensor_type": a.SensorType,
			"location":    a.Location,
			"severity":    a.Severity,
		},
		map[string]interface{}{
			"value":    a.Value,
			"previous": a.Previous,
			"message":  a.Message,
		},
		a.Timestamp,
	))
}

// WriteRecovery records a severity drop.
func (c *Client) WriteRecovery(sensorID, from, to string, value float64, at time.Time) {
	c.enqueue(write.NewPoint(
		MeasurementRecovery,
		map[string]string{
			"sensor_id": sensorID,
			"from":      from,
			"to":        to,
		},
		map[string]interface{}{
			"value": value,
		},
		at,
	))
}

// WriteCommand records a routed command outcome for latency dashboards.
func (c *Client) WriteCommand(op string, tier hal.Tier, success bool, elapsed time.Duration) {
	c.enqueue(write.NewPoint(
		MeasurementCommand,
		map[string]string{
			"op":   op,
			"tier": string(tier),
		},
		map[string]interface{}{
			"success":    success,
			"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
		},
		time.Now(),
	))
}
