package commands

import "github.com/wwj718/spherov2/internal/packet"

// System info command IDs (device 0x11).
const (
	cmdSysGetMainAppVersion byte = 0x00
	cmdSysGetBootloaderVer  byte = 0x01
	cmdSysGetMacAddress     byte = 0x06
	cmdSysGetStatsID        byte = 0x13
	cmdSysGetThreeCharSku   byte = 0x38
)

// GetMainAppVersion requests the firmware version as three big-endian
// uint16 components (major, minor, revision).
func GetMainAppVersion() *packet.Packet {
	return packet.New(DeviceSystemInfo, cmdSysGetMainAppVersion)
}

func GetBootloaderVersion() *packet.Packet {
	return packet.New(DeviceSystemInfo, cmdSysGetBootloaderVer)
}

func GetMacAddress() *packet.Packet {
	return packet.New(DeviceSystemInfo, cmdSysGetMacAddress)
}

func GetStatsID() *packet.Packet {
	return packet.New(DeviceSystemInfo, cmdSysGetStatsID)
}

func GetThreeCharacterSku() *packet.Packet {
	return packet.New(DeviceSystemInfo, cmdSysGetThreeCharSku)
}
