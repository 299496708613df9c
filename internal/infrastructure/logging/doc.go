// Package logging provides structured logging for the Laura-bot hardware engine.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	probeLog := logger.Component("probe")
//	probeLog.Info("class bound", "class", "motion", "tier", "real")
//
// Never log broker passwords or InfluxDB tokens.
package logging
