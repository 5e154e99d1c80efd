package commands

import "github.com/wwj718/spherov2/internal/packet"

const cmdAPIPing byte = 0x00

// Ping echoes data through the toy's API processor.
func Ping(data []byte) *packet.Packet {
	return packet.New(DeviceAPIAndShell, cmdAPIPing, data...)
}
