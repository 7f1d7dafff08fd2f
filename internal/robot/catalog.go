package robot

import (
	"maps"
	"slices"
)

// Driver names as reported by the MCU port type lists.
const (
	DriverNotConfigured = "NotConfigured"
	DriverDcMotor       = "DcMotor"
	DriverHCSR04        = "HC_SR04"
	DriverBumperSwitch  = "BumperSwitch"
)

// NotConfigured is the configuration name of an unused port.
const NotConfigured = "NotConfigured"

// DriverSpec names the MCU driver of a port configuration and its settings.
type DriverSpec struct {
	Driver string

	// Motor is set for DcMotor configurations.
	Motor *MotorConfig
}

// DriverCatalog maps configuration names to driver specs.
type DriverCatalog struct {
	specs map[string]DriverSpec
}

// NewDriverCatalog returns a catalog of specs. A NotConfigured entry is
// always present.
func NewDriverCatalog(specs map[string]DriverSpec) *DriverCatalog {
	c := &DriverCatalog{specs: maps.Clone(specs)}
	if c.specs == nil {
		c.specs = make(map[string]DriverSpec)
	}
	if _, ok := c.specs[NotConfigured]; !ok {
		c.specs[NotConfigured] = DriverSpec{Driver: DriverNotConfigured}
	}
	return c
}

// Lookup returns the spec of a configuration name.
func (c *DriverCatalog) Lookup(name string) (DriverSpec, bool) {
	spec, ok := c.specs[name]
	return spec, ok
}

// Names returns the configuration names in sorted order.
func (c *DriverCatalog) Names() []string {
	return slices.Sorted(maps.Keys(c.specs))
}

func revvyMotor(p float32, resolution int16) *MotorConfig {
	return &MotorConfig{
		PositionLimits:     [2]int32{0, 0},
		PositionController: [5]float32{10, 0, 0, -900, 900},
		SpeedController:    [5]float32{p, 0.3, 0, -100, 100},
		EncoderResolution:  resolution,
	}
}

// MotorCatalog returns the motor configurations known to the robot.
func MotorCatalog() *DriverCatalog {
	dc := func(cfg *MotorConfig) DriverSpec {
		return DriverSpec{Driver: DriverDcMotor, Motor: cfg}
	}
	return NewDriverCatalog(map[string]DriverSpec{
		"RevvyMotor":            dc(revvyMotor(1/37.5, 1536)),
		"RevvyMotor_CCW":        dc(revvyMotor(1/37.5, -1536)),
		"RevvyMotor_Old":        dc(revvyMotor(1.0/25, 1168)),
		"RevvyMotor_Old_CCW":    dc(revvyMotor(1.0/25, -1168)),
		"RevvyMotor_Dexter":     dc(revvyMotor(1.0/8, 292)),
		"RevvyMotor_Dexter_CCW": dc(revvyMotor(1.0/8, -292)),
	})
}

// SensorCatalog returns the sensor configurations known to the robot.
func SensorCatalog() *DriverCatalog {
	return NewDriverCatalog(map[string]DriverSpec{
		"HC_SR04":      {Driver: DriverHCSR04},
		"BumperSwitch": {Driver: DriverBumperSwitch},
	})
}
