package commands

import "github.com/wwj718/spherov2/internal/packet"

// Power command IDs (device 0x13).
const (
	cmdPowerDeepSleep             byte = 0x00
	cmdPowerSleep                 byte = 0x01
	cmdPowerGetBatteryVoltage     byte = 0x03
	cmdPowerGetBatteryState       byte = 0x04
	cmdPowerEnableBatteryStateChg byte = 0x05
	cmdPowerBatteryStateChgNotify byte = 0x06
	cmdPowerWake                  byte = 0x0D
)

// BatteryState is the device-reported charge condition.
type BatteryState byte

const (
	BatteryStateCharged BatteryState = iota + 1
	BatteryStateCharging
	BatteryStateNotCharging
	BatteryStateOK
	BatteryStateLow
	BatteryStateCritical
)

func (s BatteryState) String() string {
	switch s {
	case BatteryStateCharged:
		return "charged"
	case BatteryStateCharging:
		return "charging"
	case BatteryStateNotCharging:
		return "not charging"
	case BatteryStateOK:
		return "ok"
	case BatteryStateLow:
		return "low"
	case BatteryStateCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// BatteryStateChangedNotify fires when the charge condition transitions.
var BatteryStateChangedNotify = Key{DevicePower, cmdPowerBatteryStateChgNotify}

func Wake() *packet.Packet {
	return packet.New(DevicePower, cmdPowerWake)
}

func Sleep() *packet.Packet {
	return packet.New(DevicePower, cmdPowerSleep)
}

func DeepSleep() *packet.Packet {
	return packet.New(DevicePower, cmdPowerDeepSleep)
}

// GetBatteryVoltage requests the battery voltage in centivolts.
func GetBatteryVoltage() *packet.Packet {
	return packet.New(DevicePower, cmdPowerGetBatteryVoltage)
}

func GetBatteryState() *packet.Packet {
	return packet.New(DevicePower, cmdPowerGetBatteryState)
}

func EnableBatteryStateChangedNotify(enable bool) *packet.Packet {
	return packet.New(DevicePower, cmdPowerEnableBatteryStateChg, boolByte(enable))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
