package commands

import (
	"encoding/binary"

	"github.com/wwj718/spherov2/internal/packet"
)

// Driving command IDs (device 0x16).
const (
	cmdDrivingRawMotors        byte = 0x01
	cmdDrivingResetYaw         byte = 0x06
	cmdDrivingWithHeading      byte = 0x07
	cmdDrivingSetStabilization byte = 0x0C
)

// DriveFlag modifies drive_with_heading.
type DriveFlag byte

const (
	DriveFlagForward  DriveFlag = 0x00
	DriveFlagBackward DriveFlag = 0x01
	DriveFlagTurbo    DriveFlag = 0x02
)

// RawMotorMode selects the direction for one motor in raw mode.
type RawMotorMode byte

const (
	RawMotorOff RawMotorMode = iota
	RawMotorForward
	RawMotorReverse
)

// StabilizationIndex selects which control loops the IMU stabilizes.
type StabilizationIndex byte

const (
	StabilizationNone            StabilizationIndex = 0
	StabilizationFullControl     StabilizationIndex = 1
	StabilizationPitchControl    StabilizationIndex = 2
	StabilizationRollControl     StabilizationIndex = 3
	StabilizationYawControl      StabilizationIndex = 4
	StabilizationSpeedAndHeading StabilizationIndex = 5
)

// DriveWithHeading commands speed 0-255 toward heading 0-359.
func DriveWithHeading(speed byte, heading uint16, flags DriveFlag) *packet.Packet {
	data := make([]byte, 4)
	data[0] = speed
	binary.BigEndian.PutUint16(data[1:3], heading)
	data[3] = byte(flags)
	return packet.New(DeviceDriving, cmdDrivingWithHeading, data...)
}

// SetRawMotors applies independent unstabilized power to each tread.
func SetRawMotors(leftMode RawMotorMode, left byte, rightMode RawMotorMode, right byte) *packet.Packet {
	return packet.New(DeviceDriving, cmdDrivingRawMotors,
		byte(leftMode), left, byte(rightMode), right)
}

// ResetYaw re-zeroes the heading reference (aim calibration).
func ResetYaw() *packet.Packet {
	return packet.New(DeviceDriving, cmdDrivingResetYaw)
}

func SetStabilization(index StabilizationIndex) *packet.Packet {
	return packet.New(DeviceDriving, cmdDrivingSetStabilization, byte(index))
}
