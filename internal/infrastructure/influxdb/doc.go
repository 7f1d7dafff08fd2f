// Package influxdb records robot telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched metric writing and health monitoring.
//
// # Measurements
//
//   - battery: main, motor and charger fields
//   - motor: position, speed and power per port
//   - sensor: numeric value per port
//   - script_run: run count and failure flag per script
//
// Every point carries a "robot" tag.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Robot.Name)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteBattery(80, 65, 0)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes; a client that
// is not connected drops points silently.
package influxdb
