// Package logging provides structured logging with per-module log levels.
//
// Records go to stdout when it is connected and to the systemd journal when
// journald is reachable. Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"decode":  "debug",
//			"scanner": "info",
//		},
//	})
//
// and fetch a logger per module:
//
//	logger := logging.GetLogger("scanner")
//	logger.Info("Session started", "device_id", id)
//
// Per-frame decode misses are logged at debug only. Journal entries carry
// SYSLOG_IDENTIFIER=codescan and a MODULE field:
//
//	journalctl -t codescan MODULE=probe
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	decode = "debug"
package logging
