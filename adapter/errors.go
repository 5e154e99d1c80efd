package adapter

import (
	"errors"
	"fmt"
)

// NotFoundError reports a GATT lookup miss. UUIDs holds the lookup
// path, outermost first; for a characteristic that is just the
// characteristic UUID, optionally preceded by its service.
type NotFoundError struct {
	Resource string
	UUIDs    []string
}

func (e *NotFoundError) Error() string {
	switch len(e.UUIDs) {
	case 0:
		return e.Resource + " not found"
	case 1:
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	default:
		return fmt.Sprintf("%s %q not found under %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
	}
}

// Is allows errors.Is to compare NotFoundError values by Resource, so the
// sentinel ErrCharacteristicNotFound matches any missing-characteristic
// error regardless of which UUIDs it names.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	return ok && e != nil && e.Resource == t.Resource
}

// ErrCharacteristicNotFound matches any NotFoundError for a characteristic.
var ErrCharacteristicNotFound = &NotFoundError{Resource: "characteristic"}

// ConnectionState names the way a connection can be unusable.
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError is any connection-level failure. Two ConnectionErrors
// compare equal under errors.Is when their States match, so callers
// test against the sentinels below without caring about Msg.
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

func (e *ConnectionError) Is(target error) bool {
	t, ok := target.(*ConnectionError)
	return ok && e != nil && e.State == t.State
}

var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
)

// ErrTimeout is returned when a transport operation exceeds its deadline.
var ErrTimeout = errors.New("timeout")

// TransportError represents a failed operation on an otherwise live
// connection (write, read, subscribe, unsubscribe).
type TransportError struct {
	Op   string
	UUID string
	Err  error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.UUID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
