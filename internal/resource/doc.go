// Package resource arbitrates exclusive access to the robot's physical
// actuators.
//
// Each actuator domain (a motor port, a sensor port, the LED ring, the
// drivetrain, the sound output) owns one Resource. Scripts and system
// actions request it with a priority; a smaller number is stronger.
//
//	res := resource.New()
//	h := res.Request(2, func() { log.Info("lost the drivetrain") })
//	if h == nil {
//	    return // a stronger holder is active
//	}
//	defer h.Release()
//	h.RunUninterruptible(func() { drivetrain.SetSpeeds(400, 400) })
//
// Requests never block. A weaker holder is preempted: its handle is marked
// interrupted and its callback runs before the new handle is returned.
package resource
