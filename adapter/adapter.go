// Package adapter defines the transport boundary between a toy and the
// Bluetooth stack: a synchronous request surface over a callback-driven
// peripheral. Implementations live in subpackages (adapter/goble).
package adapter

import "context"

// NotifyFunc receives the raw payload of a characteristic notification.
// It is invoked from the adapter's pump goroutine, never from the BLE
// stack's callback thread, so implementations may block briefly without
// stalling the radio.
type NotifyFunc func(data []byte)

// Adapter is a live connection to a peripheral. All methods are safe for
// concurrent use; writes and reads are serialized internally so only one
// transport operation is outstanding at a time.
type Adapter interface {
	// Write sends data to the characteristic, chunked to the ATT payload
	// size. With withResponse the peripheral acknowledges each chunk.
	Write(ctx context.Context, uuid string, data []byte, withResponse bool) error

	// Read reads the characteristic's current value.
	Read(ctx context.Context, uuid string) ([]byte, error)

	// Subscribe registers fn for notifications from the characteristic.
	// At most one subscriber per characteristic; a second Subscribe on the
	// same UUID replaces the first.
	Subscribe(uuid string, fn NotifyFunc) error

	// Unsubscribe stops notification delivery for the characteristic.
	Unsubscribe(uuid string) error

	// Close disconnects and releases the notification pump. Close is
	// idempotent; a second call is a no-op.
	Close() error

	IsConnected() bool
	Address() string
	Name() string
}
