package simulation

import "errors"

var (
	// ErrInvalidReading is returned by Ingest for a reading without a sensor id.
	ErrInvalidReading = errors.New("simulation: invalid reading")

	// ErrStaleReading is returned by Ingest when a reading is older than the
	// newest one already held for that sensor.
	ErrStaleReading = errors.New("simulation: reading older than latest")

	// ErrUnknownTarget is returned when a failure target is neither a sensor
	// id nor a capability class.
	ErrUnknownTarget = errors.New("simulation: unknown failure target")
)
