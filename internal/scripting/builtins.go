package scripting

import (
	"errors"
	"fmt"
)

// SpeedSetter is the drivetrain capability the drive builtins need.
type SpeedSetter interface {
	SetSpeeds(left, right float64) error
}

// DrivetrainProvider is implemented by the robot value handed to scripts.
type DrivetrainProvider interface {
	DrivetrainSpeeds() SpeedSetter
}

// MaxWheelSpeed is the wheel speed, in degrees per second, at full stick.
const MaxWheelSpeed = 900

// Builtins returns the native scripts addressable by name from a
// configuration.
func Builtins() map[string]GoBody {
	return map[string]GoBody{
		"drive_joystick": driveWith(Joystick),
		"drive_2sticks":  driveWith(StickController),
	}
}

// Builtin returns the named native script.
func Builtin(name string) (GoBody, bool) {
	b, ok := Builtins()[name]
	return b, ok
}

func driveWith(controller func(x, y float64) (float64, float64)) GoBody {
	return func(env *Env) error {
		robot, ok := env.Get("robot").(DrivetrainProvider)
		if !ok {
			return errors.New("drive: robot interface missing")
		}
		channels := env.Inputs()
		if len(channels) < 2 {
			return fmt.Errorf("drive: need 2 analog channels, got %d", len(channels))
		}

		x := NormalizeAnalog(channels[0])
		y := NormalizeAnalog(channels[1])
		sl, sr := controller(x, y)

		return robot.DrivetrainSpeeds().SetSpeeds(
			MapValues(sl, 0, 1, 0, MaxWheelSpeed),
			MapValues(sr, 0, 1, 0, MaxWheelSpeed),
		)
	}
}
