// Package logging builds the slog-based logger shared by every subsystem.
//
// Records are JSON by default (text when logging.format is "text") and
// always carry service=rover and the build version. Subsystems tag their
// records with Component:
//
//	log := logging.New(cfg.Logging, version)
//	defer log.Close()
//	control.SetLogger(log.Component("mcu"))
//
// With logging.output set to "file" the log is rotated by size:
//
//	logging:
//	  level: debug
//	  output: file
//	  file:
//	    path: /var/log/rover/rover.log
//	    max_size: 10     # MB per file
//	    max_backups: 3
package logging
