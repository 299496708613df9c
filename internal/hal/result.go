package hal

import (
	"errors"
	"fmt"
)

// Result is the uniform outcome of a routed command.
//
// MethodUsed is the tier that produced the final outcome, whether it
// succeeded or not. Attempted lists every tier tried, in order, so the UI
// can render "voice input unavailable, using text fallback" style messages.
type Result[T any] struct {
	Success    bool   `json:"success"`
	Data       T      `json:"data"`
	MethodUsed Tier   `json:"method_used"`
	Attempted  []Tier `json:"attempted"`
	Reason     string `json:"reason,omitempty"`
	Err        error  `json:"-"`
}

// Succeeded builds a successful result.
func Succeeded[T any](data T, method Tier, attempted []Tier) Result[T] {
	return Result[T]{
		Success:    true,
		Data:       data,
		MethodUsed: method,
		Attempted:  attempted,
	}
}

// Failed builds a failed result carrying a short human-readable reason.
func Failed[T any](err error, method Tier, attempted []Tier) Result[T] {
	return Result[T]{
		MethodUsed: method,
		Attempted:  attempted,
		Reason:     Reason(err),
		Err:        err,
	}
}

// Fallback reports whether the result was served below the first tier attempted.
func (r Result[T]) Fallback() bool {
	return len(r.Attempted) > 1
}

// Reason maps an error to a short message suitable for display.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrListenTimeout):
		return "no speech heard before the timeout"
	case errors.Is(err, ErrSimulatedDeviceDown):
		return "device unavailable (simulated failure)"
	case errors.Is(err, ErrDeviceReadFailure):
		return "device did not respond"
	case errors.Is(err, ErrInvalidPosition):
		return "position must be between 0 and 180 degrees"
	case errors.Is(err, ErrUnknownPose):
		return "unknown pose"
	case errors.Is(err, ErrNoBackendAvailable):
		return "no backend bound"
	default:
		return fmt.Sprintf("request failed: %v", err)
	}
}
