// Package audit keeps a durable trail of hardware events in SQLite.
//
// Recorded actions:
//   - probe: one entry per class per probe run, with tier and attempts
//   - rebind: a class moved to a different backend
//   - fallback: a routed call was served below its bound tier
//   - alert, recovery: sensor severity transitions
//   - failure_injected, failure_restored: simulated failure windows
//
// The Recorder queues entries and writes them on its own goroutine so
// tick and request paths never wait on the database.
package audit
