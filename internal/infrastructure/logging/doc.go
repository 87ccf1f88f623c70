// Package logging provides structured logging for wpaif.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the bridge.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Size-based file rotation via lumberjack
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "/var/log/wpaif/wpaif.log"
//	    max_size: 10     # megabytes
//	    max_backups: 3
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("bridge started", "device", cfg.WPA.Device)
//
// # Security
//
// Never log pre-shared keys. Workflow code logs the SSID only.
package logging
