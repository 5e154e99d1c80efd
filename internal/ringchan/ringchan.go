// Package ringchan provides a bounded channel with overwrite-oldest
// semantics, used to decouple BLE callback threads from consumers that
// may fall behind.
package ringchan

import "sync/atomic"

// RingChannel wraps a buffered channel so that producers never block
// indefinitely: when the buffer is full the oldest element is discarded
// to make room. Notification paths use it where the producer is a
// transport callback that must not stall.
//
// Consumers either range over C() like a plain channel or call
// Receive/TryReceive, which additionally count the Processed metric.
type RingChannel[T any] struct {
	ch chan T

	written     atomic.Int64
	overwritten atomic.Int64
	processed   atomic.Int64
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side of the buffer. Reads through it bypass the
// Processed counter.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest buffered one if the
// buffer is full. It never blocks indefinitely.
func (rc *RingChannel[T]) Send(v T) {
	rc.ForceSend(v)
}

// ForceSend inserts an item, discarding the oldest buffered one if the
// buffer is full. It reports whether anything was discarded.
func (rc *RingChannel[T]) ForceSend(v T) bool {
	dropped := false
	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return dropped
		default:
		}
		// Full: evict one and try again. The eviction is non-blocking
		// because a concurrent reader may have emptied the buffer since
		// the send failed.
		select {
		case <-rc.ch:
			rc.overwritten.Add(1)
			dropped = true
		default:
		}
	}
}

// TrySend inserts an item only if the buffer has room.
func (rc *RingChannel[T]) TrySend(v T) bool {
	select {
	case rc.ch <- v:
		rc.written.Add(1)
		return true
	default:
		return false
	}
}

// Receive blocks until a value is available or the channel is closed.
// The ok result is false once the buffer is closed and drained.
func (rc *RingChannel[T]) Receive() (T, bool) {
	v, ok := <-rc.ch
	if ok {
		rc.processed.Add(1)
	}
	return v, ok
}

// TryReceive returns the next value without blocking, or (zero, false)
// when nothing is buffered.
func (rc *RingChannel[T]) TryReceive() (T, bool) {
	select {
	case v, ok := <-rc.ch:
		if ok {
			rc.processed.Add(1)
		}
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the buffer capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the buffer. Sends after Close panic.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}

// Metrics is a point-in-time snapshot of the channel counters.
type Metrics struct {
	Written     int64 // values accepted into the buffer
	Overwritten int64 // values discarded to make room
	Processed   int64 // values handed out via Receive or TryReceive
}

// GetMetrics snapshots the counters.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Written:     rc.written.Load(),
		Overwritten: rc.overwritten.Load(),
		Processed:   rc.processed.Load(),
	}
}
