package history

import "errors"

// Errors for InfluxDB operations. Use errors.Is to check for them.
var (
	// ErrIncompleteConfig is returned when URL, org or bucket is missing
	ErrIncompleteConfig = errors.New("influxdb: url, org and bucket are required")

	// ErrConnectionFailed is returned when the server does not answer a ping
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)
