package mcu

import "fmt"

// BatteryStatus is the decoded battery slot.
type BatteryStatus struct {
	ChargerStatus int `json:"charger_status"`
	Main          int `json:"main"`
	Motor         int `json:"motor"`
}

// ParseBattery decodes [charger status][main %][motor status][motor %].
func ParseBattery(payload []byte) (BatteryStatus, error) {
	if len(payload) != 4 {
		return BatteryStatus{}, fmt.Errorf("mcu: battery payload: expected 4 bytes, got %d", len(payload))
	}
	return BatteryStatus{
		ChargerStatus: int(payload[0]),
		Main:          int(payload[1]),
		Motor:         int(payload[3]),
	}, nil
}
