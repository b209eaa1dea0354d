package influxdb

import "errors"

// Errors returned by the auth telemetry client.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("auth telemetry: influxdb disabled")

	// ErrConnectionFailed wraps the reason the startup ping did not succeed.
	ErrConnectionFailed = errors.New("auth telemetry: influxdb unreachable")

	// ErrNotConnected is returned once the client has been closed.
	ErrNotConnected = errors.New("auth telemetry: influxdb client closed")

	// ErrWriteFailed wraps batch failures delivered to the SetOnError callback.
	ErrWriteFailed = errors.New("auth telemetry: influxdb batch rejected")
)
