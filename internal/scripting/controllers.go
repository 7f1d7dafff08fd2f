package scripting

import "math"

// Clip constrains x to [lo, hi].
func Clip(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

// MapValues scales x from [minX, maxX] to [minY, maxY].
func MapValues(x, minX, maxX, minY, maxY float64) float64 {
	return (x-minX)*((maxY-minY)/(maxX-minX)) + minY
}

// NormalizeAnalog maps a raw analog byte to [-1, 1] with 127 as zero.
func NormalizeAnalog(b byte) float64 {
	return Clip((float64(b)-127)/127, -1, 1)
}

// StickController passes two independent stick values through as wheel speeds.
func StickController(x, y float64) (left, right float64) {
	return x, y
}

// Joystick converts a single stick position into left and right wheel
// speeds in [-1, 1].
func Joystick(x, y float64) (left, right float64) {
	return genericJoystick(x, y, 1)
}

// ExpoJoystick is Joystick with an exponential response curve.
func ExpoJoystick(x, y float64) (left, right float64) {
	return genericJoystick(x, y, 0.5)
}

func genericJoystick(x, y, factor float64) (float64, float64) {
	if x == 0 && y == 0 {
		return 0, 0
	}

	angle := math.Atan2(y, x) - math.Pi/2
	length := math.Hypot(x, y)
	length = (1-factor)*math.Pow(length, 3) + factor*length

	v := length * math.Cos(angle)
	w := length * math.Sin(angle)

	return round3(v - w), round3(v + w)
}

func round3(x float64) float64 {
	r := math.RoundToEven(x*1000) / 1000
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}
