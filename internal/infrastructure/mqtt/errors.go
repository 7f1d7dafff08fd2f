package mqtt

import "errors"

// Link errors. Callers match them with errors.Is; the broker cause, when
// there is one, is wrapped alongside.
var (
	ErrNotConnected      = errors.New("mqtt: link to broker is down")
	ErrConnectionFailed  = errors.New("mqtt: could not reach broker")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects anything above QoS 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrPayloadTooLarge bounds outbound messages; a long-message status is
	// the largest thing the robot ever sends.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	// ErrTimeout is wrapped together with the operation error when the
	// broker does not acknowledge in time.
	ErrTimeout = errors.New("mqtt: broker did not acknowledge in time")
)
