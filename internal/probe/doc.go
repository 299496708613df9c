// Package probe detects which hardware is present and binds each capability
// class to the best responsive backend.
//
// For every class the Prober tries the configured real candidates in order,
// then the device-only candidates, then settles on the simulated backend.
// Each candidate gets the class timeout; a candidate that does not answer in
// time is recorded as a timeout outcome and the probe moves on. When a real
// device wins, the device-only candidates are still probed once so the router
// has a one-tier-down fallback handle.
//
// Classes are probed concurrently. Concurrent Probe calls share one in-flight
// run and all receive its report.
package probe
