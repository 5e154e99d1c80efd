package goble

import (
	"fmt"
	"strings"

	"github.com/wwj718/spherov2/adapter"
)

// errorRules maps substrings of go-ble error text to connection-state
// sentinels. Matching is case-insensitive, first hit wins.
var errorRules = []struct {
	substr   string
	sentinel *adapter.ConnectionError
}{
	{"is bluetooth turned on", adapter.ErrBluetoothOff},
	{"bluetooth is turned off", adapter.ErrBluetoothOff},
	{"rfkill", adapter.ErrBluetoothOff},
	{"device already connected", adapter.ErrAlreadyConnected},
	{"device not connected", adapter.ErrNotConnected},
	{"disconnected", adapter.ErrNotConnected},
	{"connection is not initialized", adapter.ErrNotInitialized},
}

// NormalizeError translates go-ble error text into ConnectionError
// sentinels, wrapping the original so callers keep the upstream detail.
// Errors matching no known pattern pass through unchanged.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range errorRules {
		if strings.Contains(msg, rule.substr) {
			return fmt.Errorf("%w: %v", rule.sentinel, err)
		}
	}
	return err
}
