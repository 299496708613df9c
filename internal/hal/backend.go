package hal

import (
	"fmt"
	"strings"
)

// Candidate is a physical endpoint the probe may try for a capability class.
//
// Kind selects the driver ("serial", "mqtt", "exec"); Address is
// driver-specific (a port path, a node id, a command line).
type Candidate struct {
	Kind    string `json:"kind" yaml:"kind"`
	Address string `json:"address" yaml:"address"`
}

// String renders the candidate as "kind:address".
func (c Candidate) String() string {
	return c.Kind + ":" + c.Address
}

// ParseCandidate parses the "kind:address" form used in configuration.
func ParseCandidate(s string) (Candidate, error) {
	kind, addr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || kind == "" || strings.TrimSpace(addr) == "" {
		return Candidate{}, fmt.Errorf("hal: invalid candidate %q (want kind:address)", s)
	}
	return Candidate{Kind: strings.ToLower(kind), Address: strings.TrimSpace(addr)}, nil
}

// Handle is an open device returned by DeviceIO.Open.
// Handles are values; the driver that issued one keys its state by ID.
type Handle struct {
	ID        string          `json:"id"`
	Class     CapabilityClass `json:"class"`
	Candidate Candidate       `json:"candidate"`
}

// Backend is the closed set of implementations a capability class can be
// bound to. Only RealBackend, DeviceOnlyBackend and SimulatedBackend
// satisfy it.
type Backend interface {
	// Tier reports which fallback tier the backend belongs to.
	Tier() Tier

	// DeviceID identifies the concrete device for diagnostics.
	DeviceID() string

	sealed()
}

// RealBackend is a responsive dedicated device (microcontroller, camera node).
type RealBackend struct {
	Handle  Handle
	Address string

	// Fallback is the generic device discovered for the same class during the
	// probe, used for one-tier-down fallback when the real device fails a call.
	// Nil when no generic device was available.
	Fallback *DeviceOnlyBackend
}

// DeviceOnlyBackend is a generic system device (default microphone, speakers).
type DeviceOnlyBackend struct {
	Handle Handle
}

// SimulatedBackend is served by the simulation substrate.
type SimulatedBackend struct {
	Seed  uint64
	Label string
}

func (RealBackend) Tier() Tier       { return TierReal }
func (DeviceOnlyBackend) Tier() Tier { return TierDeviceOnly }
func (SimulatedBackend) Tier() Tier  { return TierSimulated }

func (b RealBackend) DeviceID() string       { return b.Handle.Candidate.String() }
func (b DeviceOnlyBackend) DeviceID() string { return b.Handle.Candidate.String() }

func (b SimulatedBackend) DeviceID() string {
	if b.Label != "" {
		return b.Label
	}
	return fmt.Sprintf("sim-%d", b.Seed)
}

func (RealBackend) sealed()       {}
func (DeviceOnlyBackend) sealed() {}
func (SimulatedBackend) sealed()  {}

// NewSimulated returns the simulated backend for a class.
func NewSimulated(class CapabilityClass, seed uint64) SimulatedBackend {
	return SimulatedBackend{Seed: seed, Label: "sim-" + string(class)}
}
