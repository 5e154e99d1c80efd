// Package commands builds the v2 API packets understood by
// Sphero-family toys, one file per on-device subsystem. Builders return
// unsequenced packets; the correlator assigns sequence numbers when
// sending. Notification keys identify unsolicited inbound packets by
// device and command ID.
package commands

// Device IDs.
const (
	DeviceAPIAndShell byte = 0x10
	DeviceSystemInfo  byte = 0x11
	DevicePower       byte = 0x13
	DeviceDriving     byte = 0x16
	DeviceAnimatronic byte = 0x17
	DeviceSensor      byte = 0x18
	DeviceUserIO      byte = 0x1A
)

// Key identifies a notification stream (or a command's acknowledgement
// family) by device and command ID.
type Key struct {
	DeviceID  byte
	CommandID byte
}
