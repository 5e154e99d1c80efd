//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
)

func newDefaultDevice() (ble.Device, error) {
	return nil, fmt.Errorf("no BLE device support on %s", runtime.GOOS)
}
