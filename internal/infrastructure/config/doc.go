// Package config handles loading and validating Laura-bot hardware engine configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with LAURABOT_* environment variables
//   - Validation of probe candidates, thresholds and poses
//   - Default value handling (sensor catalogue, alert thresholds, servo poses)
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The diagnostics API binds to loopback by default
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Simulation.Cadence)
package config
