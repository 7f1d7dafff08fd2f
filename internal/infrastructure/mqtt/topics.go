package mqtt

import "fmt"

// DefaultTopicPrefix is the root of every robot topic.
const DefaultTopicPrefix = "rover"

// Topics builds the topics of one robot: {prefix}/{robot}/...
//
// Using these helpers keeps topic naming consistent between the link
// bridge and the tools talking to it:
//
//	topics := mqtt.NewTopics("rover", "rover-01")
//	topics.LiveControl()
//	// Returns: "rover/rover-01/live/control"
type Topics struct {
	Prefix string
	Robot  string
}

// NewTopics returns the topic builders for robot. An empty prefix selects
// DefaultTopicPrefix.
func NewTopics(prefix, robot string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix, Robot: robot}
}

func (t Topics) base() string {
	return fmt.Sprintf("%s/%s", t.Prefix, t.Robot)
}

// =============================================================================
// Live Topics (inbound)
// =============================================================================

// LiveControl carries remote-control frames from the controlling device.
//
// Example: rover/rover-01/live/control
func (t Topics) LiveControl() string {
	return t.base() + "/live/control"
}

// LiveConnection carries the presence of the controlling device, "1" or "0".
//
// Example: rover/rover-01/live/connection
func (t Topics) LiveConnection() string {
	return t.base() + "/live/connection"
}

// =============================================================================
// Long Message Topics
// =============================================================================

// LongMessageWrite carries [header][payload] upload requests.
//
// Example: rover/rover-01/longmessage/write
func (t Topics) LongMessageWrite() string {
	return t.base() + "/longmessage/write"
}

// LongMessageResult carries the one byte result of a write.
//
// Example: rover/rover-01/longmessage/result
func (t Topics) LongMessageResult() string {
	return t.base() + "/longmessage/result"
}

// LongMessageRead requests the status of the selected message.
//
// Example: rover/rover-01/longmessage/read
func (t Topics) LongMessageRead() string {
	return t.base() + "/longmessage/read"
}

// LongMessageStatus carries the answer to a read request.
//
// Example: rover/rover-01/longmessage/status
func (t Topics) LongMessageStatus() string {
	return t.base() + "/longmessage/status"
}

// =============================================================================
// Status Topics (outbound, retained)
// =============================================================================

// StatusBattery carries the battery levels.
//
// Example: rover/rover-01/status/battery
func (t Topics) StatusBattery() string {
	return t.base() + "/status/battery"
}

// StatusRobot carries the robot and controller status.
//
// Example: rover/rover-01/status/robot
func (t Topics) StatusRobot() string {
	return t.base() + "/status/robot"
}

// StatusMotor carries the live status of one motor port.
//
// Example: rover/rover-01/status/motor/2
func (t Topics) StatusMotor(port int) string {
	return fmt.Sprintf("%s/status/motor/%d", t.base(), port)
}

// StatusSensor carries the live reading of one sensor port.
//
// Example: rover/rover-01/status/sensor/1
func (t Topics) StatusSensor(port int) string {
	return fmt.Sprintf("%s/status/sensor/%d", t.base(), port)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus carries the online/offline state of the core process.
//
// Example: rover/rover-01/system/status
func (t Topics) SystemStatus() string {
	return t.base() + "/system/status"
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllStatus matches every status topic of the robot.
//
// Pattern: rover/rover-01/status/#
func (t Topics) AllStatus() string {
	return t.base() + "/status/#"
}

// AllTopics matches every topic of the robot.
//
// Pattern: rover/rover-01/#
func (t Topics) AllTopics() string {
	return t.base() + "/#"
}
