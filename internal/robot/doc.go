// Package robot ties the MCU, the script runtime, the remote controller
// and the long-message channel into one running robot.
//
// Layers, bottom up:
//
//   - Port, PortHandler and DriverCatalog: motor and sensor ports whose
//     driver is chosen at configuration time
//   - Drivetrain, RingLed, Sound and StatusIndicator: the other actuators
//   - Robot: the hardware aggregate, rebuilt state on every Reset
//   - RobotInterface: the API scripts see, taking every actuator through
//     its resource with the script's priority
//   - Manager: configuration, the periodic update loop, background
//     functions and process exit codes
//
// Configuration documents arrive as JSON and are decoded by ParseConfig.
package robot
