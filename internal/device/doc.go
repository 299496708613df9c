// Package device provides the capability Registry for the Laura-bot
// hardware engine.
//
// The Registry holds exactly one backend per capability class (input,
// output, visual, motion). New registries bind every class to its simulated
// backend, so the engine is usable before the first probe completes and a
// machine with no hardware never leaves that state.
//
// # Architecture
//
//	┌─────────────┐  Rebind   ┌──────────────────────────────┐  Get   ┌──────────┐
//	│    Probe    │──────────▶│           Registry           │◀───────│  Router  │
//	│  (startup,  │           │ input  → real | device | sim │        │ per call │
//	│  re-probe)  │           │ output → ...                 │        └──────────┘
//	└─────────────┘           │ visual → ...                 │
//	                          │ motion → ...                 │──▶ listeners (audit,
//	                          └──────────────────────────────┘    metrics, websocket)
//
// # Thread Safety
//
// The mutex is held only for the map read or swap. Backends are immutable
// values, so a backend obtained from Get stays valid for the whole call even
// if a probe rebinds the class meanwhile.
//
// # Usage
//
//	reg := device.NewRegistry(cfg.Simulation.Seed)
//	reg.OnRebind(func(ev device.RebindEvent) { ... })
//	fmt.Println(reg.Report())
//	// input: simulated (sim-input)
//	// output: simulated (sim-output)
//	// visual: simulated (sim-visual)
//	// motion: simulated (sim-motion)
package device
