package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when telemetry is switched off;
	// the robot runs without it.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	ErrConnectionFailed = errors.New("influxdb: could not reach server")
	ErrNotConnected     = errors.New("influxdb: client closed")

	// ErrUnhealthy means the server answered the ping but reported itself
	// not ready.
	ErrUnhealthy = errors.New("influxdb: server not healthy")
)
