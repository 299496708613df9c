package device

import "errors"

// Domain errors for the device package.
var (
	// ErrRebindRejected is returned when a rebind cannot be applied.
	// It always wraps the underlying hal error (unknown class, nil backend).
	ErrRebindRejected = errors.New("device: rebind rejected")
)
