package deviceio

import "errors"

var (
	// ErrDeviceAbsent is returned by Open when the endpoint does not exist.
	ErrDeviceAbsent = errors.New("deviceio: device absent")

	// ErrClosed is returned for calls on a handle that has been closed.
	ErrClosed = errors.New("deviceio: handle closed")

	// ErrMalformedReply is returned when a device reply cannot be decoded.
	ErrMalformedReply = errors.New("deviceio: malformed reply")
)
