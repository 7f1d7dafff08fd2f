// Package config loads the Rover Core configuration.
//
// Load reads a YAML file on top of built-in defaults, then applies ROVER_*
// environment overrides and validates the result. Secrets (broker
// password, InfluxDB token) are normally supplied through the environment:
//
//	ROVER_MQTT_PASSWORD=... ROVER_INFLUXDB_TOKEN=... rover
//
// The file path itself comes from ROVER_CONFIG and defaults to
// configs/config.yaml.
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
//	port := cfg.MCU.Port
package config
