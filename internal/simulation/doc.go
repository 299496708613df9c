// Package simulation fabricates sensor telemetry, gestures, voice input and
// actuator state when no hardware is present.
//
// The Substrate ticks on a fixed cadence. Each tick derives one Environment
// from the wall clock (time of day, sun, rush hour) and computes every
// sensor value from it plus bounded noise. Values are a pure function of
// (seed, tick index, sensor id, environment), so two substrates with the
// same seed agree reading for reading, and correlated quantities
// (temperature up, humidity down) stay consistent within one snapshot.
//
// Readings are kept per sensor in fixed-capacity rings; the oldest reading
// is evicted first. Reads between ticks always see the same data.
//
// Failures can be injected per sensor id or per simulated capability class.
// While a failure window is open the target produces no data and reads
// return hal.ErrSimulatedDeviceDown.
package simulation
