// Package process supervises optional hardware helper processes.
//
// Some hardware is only reachable through a helper binary: a vision helper
// that watches the camera and publishes recognised gestures over MQTT, or a
// speech helper that owns the sound card. The engine starts each configured
// helper, captures its output into the engine log and restarts it with
// exponential backoff when it exits unexpectedly.
//
// Helpers are never required. A helper that cannot start is logged and the
// capability it serves falls back to a lower tier at the next probe.
//
// Example:
//
//	sup := process.NewSupervisor(cfg.Hardware.Helpers)
//	sup.SetLogger(logger.Component("helpers"))
//	sup.Start(ctx)
//	defer sup.Stop()
package process
