// Package logging provides structured logging for shellies-ng.
//
// This package wraps a process-wide zap logger with convenience functions used
// by the registry, the RPC handlers and the outbound server.
//
// # Log Levels
//
//   - Debug: RPC frames, discovery events that were deduplicated
//   - Info: devices added/removed, connections accepted and closed
//   - Warn: recoverable failures (reconnects, unclaimed connections)
//   - Error: failures surfaced as error events
//
// # Configuration
//
// Logging is silent until initialized. Commands call:
//
//	if err := logging.Initialize(cfg.LogLevel); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// An empty level falls back to the SHELLIES_LOG_LEVEL environment variable.
//
// # Structured Fields
//
// Device identities are always logged with DeviceField so that output can be
// filtered per device:
//
//	logging.Info("Device added", logging.DeviceField(id), zap.String("model", model))
package logging
