package telemetry

import "errors"

var (
	// ErrInvalidPayload is returned for an ingest message that cannot be decoded.
	ErrInvalidPayload = errors.New("telemetry: invalid ingest payload")

	// ErrNoSource is returned by New when no reading source is supplied.
	ErrNoSource = errors.New("telemetry: reading source is required")
)
