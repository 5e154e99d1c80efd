package main

import (
	"errors"
	"fmt"

	"github.com/wwj718/spherov2/adapter"
	"github.com/wwj718/spherov2/toy"
)

// formatUserError turns the library's typed errors into one-line advice
// a person at a terminal can act on. Anything unrecognized passes
// through verbatim.
func formatUserError(err error) string {
	var notFound *toy.NotFoundError
	var cmdErr *toy.CommandError

	switch {
	case errors.Is(err, adapter.ErrBluetoothOff):
		return "Bluetooth is powered off - turn it on and try again"
	case errors.As(err, &notFound) && notFound.Kind == "toy":
		return fmt.Sprintf("no matching toy found (%s) - make sure it is charged, nearby and not connected to another app", notFound.Key)
	case errors.Is(err, toy.ErrTimeout):
		return fmt.Sprintf("%s - the toy stopped answering; move closer or power-cycle it", err)
	case errors.Is(err, adapter.ErrNotConnected):
		return fmt.Sprintf("%s - the connection dropped mid-command", err)
	case errors.Is(err, toy.ErrUnsupported):
		return fmt.Sprintf("%s - this model cannot perform the operation", err)
	case errors.As(err, &cmdErr):
		return fmt.Sprintf("the toy rejected the command: %s", cmdErr)
	default:
		return err.Error()
	}
}
