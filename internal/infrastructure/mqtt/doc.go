// Package mqtt is the broker transport of the robot link.
//
// The controlling device and Rover Core never talk directly; both connect
// to a broker and exchange messages under {prefix}/{robot}/:
//
//	live/control         remote-control frames (inbound, QoS 0)
//	live/connection      controller presence (inbound)
//	longmessage/...      upload protocol requests and answers
//	status/...           robot, battery, motor and sensor state (outbound)
//	system/status        retained online/offline presence, also the will
//
// Topics builds these names. Client wraps a paho connection: it reconnects
// by itself, restores subscriptions afterwards and exposes the link state
// through IsConnected, SetOnConnect and SetOnDisconnect.
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Robot.Name)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	err = client.Subscribe(client.Topics().LiveControl(), 0, onFrame)
package mqtt
