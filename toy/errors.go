package toy

import (
	"errors"
	"fmt"

	"github.com/wwj718/spherov2/adapter"
	"github.com/wwj718/spherov2/internal/packet"
)

// Sentinels shared with the transport layer keep errors.Is checks uniform
// across the stack.
var (
	// ErrTimeout is returned when a command response or awaited
	// notification does not arrive within the deadline.
	ErrTimeout = adapter.ErrTimeout

	// ErrSuperseded resolves a pending wait that was replaced by a newer
	// wait on the same key.
	ErrSuperseded = errors.New("superseded by a newer wait on the same key")

	// ErrUnsupported is returned for operations outside the model's
	// capability set.
	ErrUnsupported = errors.New("unsupported")
)

// CommandError is a rejection reported by the device itself: the response
// arrived but its error byte was non-zero.
type CommandError struct {
	DeviceID  byte
	CommandID byte
	Code      packet.ErrorCode
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command 0x%02X:0x%02X rejected: %s", e.DeviceID, e.CommandID, e.Code)
}

// Is allows errors.Is to match any CommandError, or one with the same code.
func (e *CommandError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*CommandError)
	if !ok {
		return false
	}
	return t.Code == 0 || t.Code == e.Code
}

// NotFoundError reports a lookup miss: removing a listener that was
// never added, or scanning a full window without seeing a matching toy.
type NotFoundError struct {
	Kind string // "listener", "toy"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// InvalidArgumentError reports a value outside the model's accepted range,
// such as an animation or sound enum belonging to a different toy.
type InvalidArgumentError struct {
	What  string
	Value any
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.What, e.Value)
}
