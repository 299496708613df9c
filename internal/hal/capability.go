package hal

import (
	"fmt"
	"strings"
)

// CapabilityClass is one functional slot requiring exactly one backend binding.
type CapabilityClass string

// Capability classes.
const (
	// ClassInput is voice input (microphone, serial text input).
	ClassInput CapabilityClass = "input"

	// ClassOutput is audio output (speakers, LED/buzzer feedback).
	ClassOutput CapabilityClass = "output"

	// ClassVisual is gesture recognition (camera, vision helper).
	ClassVisual CapabilityClass = "visual"

	// ClassMotion is servo/actuator control.
	ClassMotion CapabilityClass = "motion"
)

// Classes returns every capability class in reporting order.
func Classes() []CapabilityClass {
	return []CapabilityClass{ClassInput, ClassOutput, ClassVisual, ClassMotion}
}

// Valid reports whether c is a known capability class.
func (c CapabilityClass) Valid() bool {
	switch c {
	case ClassInput, ClassOutput, ClassVisual, ClassMotion:
		return true
	}
	return false
}

// ParseClass converts a string to a CapabilityClass (case-insensitive).
func ParseClass(s string) (CapabilityClass, error) {
	c := CapabilityClass(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownClass, s)
	}
	return c, nil
}

// Tier ranks backends from most to least capable.
type Tier string

// Tiers in fallback order.
const (
	TierReal       Tier = "real"
	TierDeviceOnly Tier = "device_only"
	TierSimulated  Tier = "simulated"
)

// Rank returns the fallback position of the tier (0 is best).
func (t Tier) Rank() int {
	switch t {
	case TierReal:
		return 0
	case TierDeviceOnly:
		return 1
	default:
		return 2
	}
}
