// Package logging provides structured logging for the free@home client.
//
// This package wraps a global zap logger with convenience functions for the
// logging patterns used by the SysAP transport, the synchronization engine,
// and the MQTT bridge.
//
// # Log Levels
//
//   - Debug: stanza dumps, unknown datapoints, ignored update pairs
//   - Info: connections, discovery results, device set rebuilds
//   - Warn: dropped connections, rejected commands, reconnect attempts
//   - Error: failures surfaced to a caller
//
// # Silent By Default
//
// The logger is a no-op until Initialize is called with a level or the
// FAH_LOG_LEVEL environment variable is set. Library users therefore get no
// output unless they opt in:
//
//	if err := logging.Initialize(""); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// # Structured Logging
//
//	logging.Info("Device set rebuilt",
//	    zap.Int("devices", 12),
//	    zap.Int("datapoints", 31),
//	)
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. Initialize and SetLogger
// are expected to run once during startup (or in test setup).
package logging
