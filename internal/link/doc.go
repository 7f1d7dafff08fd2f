// Package link connects the robot to its controlling device over MQTT.
//
// The controlling device publishes remote-control frames, its presence and
// long-message requests on the robot's live and longmessage topics. The
// bridge decodes them and hands them to the robot Manager and the
// long-message protocol, answering on the result and status topics. In the
// other direction it publishes the robot status, the battery levels and
// live motor and sensor reports.
//
// # Frame format
//
// A control payload is the analog channel bytes followed by four button
// bytes. Bit i of button byte i/8 is button i:
//
//	[analog 0][analog 1]...[buttons 0-7][buttons 8-15][buttons 16-23][buttons 24-31]
package link
