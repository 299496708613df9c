// Package api implements the diagnostics HTTP API and WebSocket server for
// the Laura-bot hardware engine.
//
// This package provides:
//   - REST endpoints for the hardware report, probing and routed commands
//   - Sensor reads, external reading ingest and simulated failure control
//   - Alert and recovery history, audit trail queries and engine statistics
//   - WebSocket hub for live readings, alerts and binding changes
//   - Prometheus scrape endpoint at /metrics
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Graceful Degradation
//
// Only the registry, router, substrate and evaluator are required. Probe,
// audit, metrics and telemetry endpoints report 503 when their component
// is not configured.
package api
