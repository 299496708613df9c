// Package router executes application commands against whichever backend
// the registry has bound for the command's capability class.
//
// Every call reads the current binding, dispatches on the closed backend
// variant and returns a hal.Result describing what happened. When a real or
// device-only backend fails at call time the router walks down the tier
// chain for that call only:
//
//	real -> its device-only fallback (if probed) -> simulated
//	device_only -> simulated
//
// The downgrade is never written back to the registry; the next call tries
// the bound backend again. Listen timeouts, invalid positions and unknown
// poses are caller errors and are not retried on a lower tier.
package router
