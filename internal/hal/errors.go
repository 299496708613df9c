package hal

import "errors"

// Error taxonomy for the hardware layer.
//
// All of these are recoverable at the router level; callers check them with
// errors.Is.
var (
	// ErrProbeTimeout is recorded when a candidate does not respond within the
	// per-class probe timeout. The probe moves on to the next candidate.
	ErrProbeTimeout = errors.New("hal: probe timeout")

	// ErrNoBackendAvailable indicates a class with no bound backend.
	// Simulated is always the terminal fallback, so seeing this is a bug.
	ErrNoBackendAvailable = errors.New("hal: no backend available")

	// ErrDeviceReadFailure is returned when a real or device-only backend
	// fails at call time. The router falls back one tier for that call.
	ErrDeviceReadFailure = errors.New("hal: device I/O failure")

	// ErrListenTimeout is returned when listen's caller timeout elapses
	// without a transcript.
	ErrListenTimeout = errors.New("hal: listen timeout")

	// ErrSimulatedDeviceDown is returned while an injected failure window is active.
	ErrSimulatedDeviceDown = errors.New("hal: simulated device down")

	// ErrUnknownClass is returned for an unrecognised capability class.
	ErrUnknownClass = errors.New("hal: unknown capability class")

	// ErrNilBackend is returned when binding a nil backend.
	ErrNilBackend = errors.New("hal: nil backend")

	// ErrUnknownSensor is returned for a sensor id the engine does not know.
	ErrUnknownSensor = errors.New("hal: unknown sensor")

	// ErrInvalidPosition is returned for an actuator position outside 0-180 degrees.
	ErrInvalidPosition = errors.New("hal: invalid actuator position")

	// ErrUnknownPose is returned for a servo pose name that is not configured.
	ErrUnknownPose = errors.New("hal: unknown pose")

	// ErrNoDriver is returned when no driver is registered for a candidate kind.
	ErrNoDriver = errors.New("hal: no driver for candidate kind")

	// ErrInvalidHandle is returned when a driver does not recognise a handle.
	ErrInvalidHandle = errors.New("hal: invalid handle")
)
