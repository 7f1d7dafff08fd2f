package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementBattery = "battery"
	MeasurementMotor   = "motor"
	MeasurementSensor  = "sensor"
	MeasurementScript  = "script_run"
)

// WriteBattery records the battery levels.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - main: Main battery charge in percent
//   - motor: Motor battery charge in percent
//   - charger: Charger status as reported by the MCU
func (c *Client) WriteBattery(main, motor, charger int) {
	c.write(BatteryPoint(c.robot, main, motor, charger, time.Now()))
}

// WriteMotorStatus records the status of one motor port.
func (c *Client) WriteMotorStatus(port int, position int32, speed float32, power int8) {
	c.write(MotorPoint(c.robot, port, position, speed, power, time.Now()))
}

// WriteSensorValue records a numeric or boolean sensor reading. Other
// value types are dropped.
func (c *Client) WriteSensorValue(port int, value any) {
	if p := SensorPoint(c.robot, port, value, time.Now()); p != nil {
		c.write(p)
	}
}

// WriteScriptRun records the end of a script run.
func (c *Client) WriteScriptRun(script string, runs int, failed bool) {
	c.write(ScriptRunPoint(c.robot, script, runs, failed, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
// The robot tag is added unless tags already carry one.
//
// Example:
//
//	client.WritePoint("loop_stats",
//	    map[string]string{"phase": "update"},
//	    map[string]interface{}{"duration_ms": 1.2})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	withRobot := make(map[string]string, len(tags)+1)
	withRobot["robot"] = c.robot
	for k, v := range tags {
		withRobot[k] = v
	}
	c.write(write.NewPoint(measurement, withRobot, fields, timestamp))
}

func (c *Client) write(point *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(point)
}

// =============================================================================
// Point builders
// =============================================================================

// BatteryPoint builds a battery measurement.
func BatteryPoint(robot string, main, motor, charger int, t time.Time) *write.Point {
	return write.NewPoint(
		MeasurementBattery,
		map[string]string{"robot": robot},
		map[string]interface{}{
			"main":    main,
			"motor":   motor,
			"charger": charger,
		},
		t,
	)
}

// MotorPoint builds a motor status measurement.
func MotorPoint(robot string, port int, position int32, speed float32, power int8, t time.Time) *write.Point {
	return write.NewPoint(
		MeasurementMotor,
		map[string]string{"robot": robot, "port": strconv.Itoa(port)},
		map[string]interface{}{
			"position": int64(position),
			"speed":    float64(speed),
			"power":    int64(power),
		},
		t,
	)
}

// SensorPoint builds a sensor measurement, nil for values that are
// neither numeric nor boolean.
func SensorPoint(robot string, port int, value any, t time.Time) *write.Point {
	var field float64
	switch v := value.(type) {
	case int:
		field = float64(v)
	case int32:
		field = float64(v)
	case int64:
		field = float64(v)
	case float32:
		field = float64(v)
	case float64:
		field = v
	case bool:
		if v {
			field = 1
		}
	default:
		return nil
	}
	return write.NewPoint(
		MeasurementSensor,
		map[string]string{"robot": robot, "port": strconv.Itoa(port)},
		map[string]interface{}{"value": field},
		t,
	)
}

// ScriptRunPoint builds a script run measurement.
func ScriptRunPoint(robot, script string, runs int, failed bool, t time.Time) *write.Point {
	return write.NewPoint(
		MeasurementScript,
		map[string]string{"robot": robot, "script": script},
		map[string]interface{}{
			"runs":   runs,
			"failed": failed,
		},
		t,
	)
}
