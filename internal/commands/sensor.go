package commands

import (
	"encoding/binary"

	"github.com/wwj718/spherov2/internal/packet"
)

// Sensor command IDs (device 0x18).
const (
	cmdSensorSetStreamingMask         byte = 0x00
	cmdSensorStreamingDataNotify      byte = 0x02
	cmdSensorSetExtendedStreamingMask byte = 0x0C
	cmdSensorEnableGyroMaxNotify      byte = 0x0F
	cmdSensorGyroMaxNotify            byte = 0x10
	cmdSensorConfigureCollision       byte = 0x11
	cmdSensorCollisionDetectedNotify  byte = 0x12
	cmdSensorResetLocator             byte = 0x13
	cmdSensorSetLocatorFlags          byte = 0x17
)

// CollisionDetectionMethod selects the firmware collision filter.
type CollisionDetectionMethod byte

const (
	CollisionDetectionOff CollisionDetectionMethod = iota
	CollisionDetectionDefault
)

// Notification keys for the sensor device.
var (
	SensorStreamingDataNotify = Key{DeviceSensor, cmdSensorStreamingDataNotify}
	GyroMaxNotify             = Key{DeviceSensor, cmdSensorGyroMaxNotify}
	CollisionDetectedNotify   = Key{DeviceSensor, cmdSensorCollisionDetectedNotify}
)

// SetSensorStreamingMask enables streaming of the masked sensors every
// interval milliseconds; count 0 streams until reconfigured.
func SetSensorStreamingMask(interval uint16, count byte, mask uint32) *packet.Packet {
	data := make([]byte, 7)
	binary.BigEndian.PutUint16(data[0:2], interval)
	data[2] = count
	binary.BigEndian.PutUint32(data[3:7], mask)
	return packet.New(DeviceSensor, cmdSensorSetStreamingMask, data...)
}

// SetExtendedSensorStreamingMask masks the second bank of sensors
// (gyroscope and model-specific extras).
func SetExtendedSensorStreamingMask(mask uint32) *packet.Packet {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, mask)
	return packet.New(DeviceSensor, cmdSensorSetExtendedStreamingMask, data...)
}

func ResetLocatorXAndY() *packet.Packet {
	return packet.New(DeviceSensor, cmdSensorResetLocator)
}

// SetLocatorFlags controls automatic yaw-tare correction of the locator.
func SetLocatorFlags(flags bool) *packet.Packet {
	return packet.New(DeviceSensor, cmdSensorSetLocatorFlags, boolByte(flags))
}

// ConfigureCollisionDetection arms the firmware collision filter.
// Thresholds and speeds are raw accelerometer units; deadTime is in
// 10 ms steps.
func ConfigureCollisionDetection(method CollisionDetectionMethod,
	xThreshold, yThreshold, xSpeed, ySpeed, deadTime byte) *packet.Packet {
	return packet.New(DeviceSensor, cmdSensorConfigureCollision,
		byte(method), xThreshold, xSpeed, yThreshold, ySpeed, deadTime)
}

func EnableGyroMaxNotify(enable bool) *packet.Packet {
	return packet.New(DeviceSensor, cmdSensorEnableGyroMaxNotify, boolByte(enable))
}
