// Package metrics exposes engine activity as Prometheus collectors.
//
// A Collector implements the Metrics interfaces of the probe, router,
// simulation and alert packages, so each component reports through the
// same registry. Handler serves the registry in the Prometheus text format.
//
// All methods are nil-safe: a nil *Collector records nothing.
package metrics
