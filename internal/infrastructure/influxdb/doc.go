// Package influxdb stores sensor telemetry and alert history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Writes are
// non-blocking and batched according to batch_size and flush_interval;
// asynchronous failures are delivered to the SetOnError callback.
//
// # Measurements
//
//   - sensor_readings: one point per reading, tagged with sensor id, type,
//     location, unit and source (simulated or external)
//   - sensor_alerts: raised alerts tagged with severity
//   - sensor_recoveries: severity drops
//   - hardware_commands: routed command outcomes per tier
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteSensorReading(reading)
//
// A nil *Client is safe to write to; every write becomes a no-op.
package influxdb
