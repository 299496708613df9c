// Package hal defines the shared vocabulary of the Laura-bot hardware
// abstraction layer.
//
// Every functional slot the application depends on (voice input, audio
// output, gesture vision, servo motion) is a CapabilityClass. Each class is
// served by exactly one Backend at a time, drawn from a ranked set of tiers:
//
//	real        a responsive microcontroller or dedicated device
//	device_only a generic system device (default microphone, speakers)
//	simulated   the in-process simulation substrate
//
// Backend is a closed variant: only RealBackend, DeviceOnlyBackend and
// SimulatedBackend implement it, so consumers dispatch with an exhaustive
// type switch.
//
// The package also defines the upstream DeviceIO contract that the concrete
// drivers implement, the uniform Result returned by every routed command,
// and the error taxonomy shared by the probe, router and simulation.
//
// Usage:
//
//	switch b := backend.(type) {
//	case hal.RealBackend:
//	    io.Write(ctx, b.Handle, payload)
//	case hal.DeviceOnlyBackend:
//	    io.Write(ctx, b.Handle, payload)
//	case hal.SimulatedBackend:
//	    substrate.Speak(text)
//	}
package hal
