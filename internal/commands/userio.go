package commands

import (
	"encoding/binary"

	"github.com/wwj718/spherov2/internal/packet"
)

// User IO command IDs (device 0x1A).
const (
	cmdUserIOPlayAudioFile         byte = 0x07
	cmdUserIOSetAudioVolume        byte = 0x08
	cmdUserIOSetAllLEDs16BitMask   byte = 0x0E
	cmdUserIOStartIdleLedAnimation byte = 0x19
)

// AudioPlaybackMode controls how a sound interacts with one already playing.
type AudioPlaybackMode byte

const (
	AudioPlaybackNoOptions       AudioPlaybackMode = iota // queue behind current sound
	AudioPlaybackImmediately                              // cut off current sound
	AudioPlaybackOnlyIfNotPlaying                         // drop if one is playing
)

// SetAllLEDsWith16BitMask writes the masked LED channels. The mask
// selects up to 16 channels in model-defined bit positions; values
// carries one byte per set bit, lowest bit first.
func SetAllLEDsWith16BitMask(mask uint16, values []byte) *packet.Packet {
	data := make([]byte, 2+len(values))
	binary.BigEndian.PutUint16(data[0:2], mask)
	copy(data[2:], values)
	return packet.New(DeviceUserIO, cmdUserIOSetAllLEDs16BitMask, data...)
}

// PlayAudioFile plays a built-in sound by index.
func PlayAudioFile(sound uint16, mode AudioPlaybackMode) *packet.Packet {
	data := make([]byte, 3)
	binary.BigEndian.PutUint16(data[0:2], sound)
	data[2] = byte(mode)
	return packet.New(DeviceUserIO, cmdUserIOPlayAudioFile, data...)
}

// SetAudioVolume sets playback volume 0-255.
func SetAudioVolume(volume byte) *packet.Packet {
	return packet.New(DeviceUserIO, cmdUserIOSetAudioVolume, volume)
}

// StartIdleLedAnimation hands LED control back to the firmware idle pattern.
func StartIdleLedAnimation() *packet.Packet {
	return packet.New(DeviceUserIO, cmdUserIOStartIdleLedAnimation)
}
