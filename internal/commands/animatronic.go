package commands

import (
	"encoding/binary"
	"math"

	"github.com/wwj718/spherov2/internal/packet"
)

// Animatronic command IDs (device 0x17), used by the droid models.
const (
	cmdAnimPlayAnimation         byte = 0x05
	cmdAnimPerformLegAction      byte = 0x0D
	cmdAnimSetLegPosition        byte = 0x0E
	cmdAnimSetHeadPosition       byte = 0x0F
	cmdAnimGetLegPosition        byte = 0x10
	cmdAnimPlayAnimationComplete byte = 0x11
	cmdAnimStopAnimation         byte = 0x2B
)

// R2LegAction is a scripted stance transition for the R2 droids.
type R2LegAction byte

const (
	R2LegActionStop R2LegAction = iota
	R2LegActionThreeLegs
	R2LegActionTwoLegs
	R2LegActionWaddle
)

// PlayAnimationCompleteNotify fires when a triggered animation finishes.
var PlayAnimationCompleteNotify = Key{DeviceAnimatronic, cmdAnimPlayAnimationComplete}

func PlayAnimation(animation uint16) *packet.Packet {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, animation)
	return packet.New(DeviceAnimatronic, cmdAnimPlayAnimation, data...)
}

func StopAnimation() *packet.Packet {
	return packet.New(DeviceAnimatronic, cmdAnimStopAnimation)
}

// SetHeadPosition rotates the dome, in degrees.
func SetHeadPosition(position float32) *packet.Packet {
	return packet.New(DeviceAnimatronic, cmdAnimSetHeadPosition, float32Bytes(position)...)
}

func PerformLegAction(action R2LegAction) *packet.Packet {
	return packet.New(DeviceAnimatronic, cmdAnimPerformLegAction, byte(action))
}

// SetLegPosition drives the third leg between 0 (retracted) and 1 (down).
func SetLegPosition(position float32) *packet.Packet {
	return packet.New(DeviceAnimatronic, cmdAnimSetLegPosition, float32Bytes(position)...)
}

func GetLegPosition() *packet.Packet {
	return packet.New(DeviceAnimatronic, cmdAnimGetLegPosition)
}

func float32Bytes(f float32) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, math.Float32bits(f))
	return data
}
