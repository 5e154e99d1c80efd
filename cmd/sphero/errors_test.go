package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wwj718/spherov2/adapter"
	"github.com/wwj718/spherov2/internal/packet"
	"github.com/wwj718/spherov2/toy"
)

func TestFormatUserError(t *testing.T) {
	cmdErr := &toy.CommandError{
		DeviceID:  0x16,
		CommandID: 0x07,
		Code:      packet.ErrorBadParameterValue,
	}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"bluetooth off",
			fmt.Errorf("creating adapter: %w", adapter.ErrBluetoothOff),
			"Bluetooth is powered off - turn it on and try again",
		},
		{
			"toy not found",
			&toy.NotFoundError{Kind: "toy", Key: "D2-55A2"},
			"no matching toy found (D2-55A2) - make sure it is charged, nearby and not connected to another app",
		},
		{
			"timeout",
			fmt.Errorf("roll: %w", toy.ErrTimeout),
			"roll: " + toy.ErrTimeout.Error() + " - the toy stopped answering; move closer or power-cycle it",
		},
		{
			"disconnected",
			fmt.Errorf("roll: %w", adapter.ErrNotConnected),
			"roll: " + adapter.ErrNotConnected.Error() + " - the connection dropped mid-command",
		},
		{
			"unsupported",
			fmt.Errorf("waddle: %w", toy.ErrUnsupported),
			"waddle: " + toy.ErrUnsupported.Error() + " - this model cannot perform the operation",
		},
		{
			"command rejected",
			cmdErr,
			"the toy rejected the command: " + cmdErr.Error(),
		},
		{
			"other not-found kinds pass through",
			&toy.NotFoundError{Kind: "listener", Key: "collision"},
			"listener collision not found",
		},
		{
			"unrecognized",
			errors.New("boom"),
			"boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatUserError(tt.err))
		})
	}
}
