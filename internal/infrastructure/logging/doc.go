// Package logging provides structured logging for huesync.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Colourised console output for interactive use
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text, console
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting sync", "interval_ms", 30000)
//	logger.Error("fetch failed", "error", err)
//
// # Security
//
// Never log the bridge credential or MQTT password. Use field
// redaction for sensitive data:
//
//	logger.Info("registered", "username_prefix", username[:8]+"...")
package logging
