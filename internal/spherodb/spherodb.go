// Package spherodb resolves the GATT UUIDs used by Sphero-family toys to
// readable names and normalizes UUID strings to the internal BLE library
// format. Sphero's service and characteristic UUIDs are proprietary
// (base ...-574f-4f20-5370-6865726f2121, ASCII "WO Sphero!!"), so the
// tables here are hand-maintained rather than generated from the
// Bluetooth SIG registry.
package spherodb

import "strings"

const (
	// APIService is the primary service carrying the v2 API characteristic.
	APIService = "00010001574f4f2053706865726f2121"
	// APICharacteristic carries command writes and response/event notifications.
	APICharacteristic = "00010002574f4f2053706865726f2121"
	// DFUService is the secondary (firmware update) service.
	DFUService = "00020001574f4f2053706865726f2121"
	// DFUControlCharacteristic drives firmware update state transitions.
	DFUControlCharacteristic = "00020002574f4f2053706865726f2121"
	// AntiDoSCharacteristic accepts the unlock phrase some models require
	// before the API characteristic responds.
	AntiDoSCharacteristic = "00020005574f4f2053706865726f2121"

	// AntiDoSPhrase is written to AntiDoSCharacteristic during connect.
	AntiDoSPhrase = "usetheforce...band"
)

const sigBaseSuffix = "00001000800000805f9b34fb"

var services = map[string]string{
	APIService: "Sphero API",
	DFUService: "Sphero DFU",
	"1800":     "Generic Access",
	"1801":     "Generic Attribute",
	"180a":     "Device Information",
	"180f":     "Battery Service",
}

var characteristics = map[string]string{
	APICharacteristic:        "Sphero API v2",
	DFUControlCharacteristic: "Sphero DFU Control",
	AntiDoSCharacteristic:    "Sphero Use-the-Force",
	"2a00":                   "Device Name",
	"2a19":                   "Battery Level",
	"2a24":                   "Model Number String",
	"2a26":                   "Firmware Revision String",
	"2a29":                   "Manufacturer Name String",
}

var descriptors = map[string]string{
	"2901": "Characteristic User Descriptor",
	"2902": "Client Characteristic Configuration",
}

// NormalizeUUID converts a UUID string to the internal BLE library format
// (lowercase, no dashes, no braces, no 0x prefix). Full 128-bit UUIDs on
// the Bluetooth SIG base are reduced to their 16-bit short form.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	// 0000xxxx + SIG base collapses to the 16-bit short form.
	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	if uuids == nil {
		return nil
	}
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = NormalizeUUID(u)
	}
	return out
}

// LookupService returns the known name for a service UUID, or "".
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the known name for a characteristic UUID, or "".
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}

// LookupDescriptor returns the known name for a descriptor UUID, or "".
func LookupDescriptor(uuid string) string {
	return descriptors[NormalizeUUID(uuid)]
}
