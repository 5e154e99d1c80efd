package packet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
)

const (
	// DefaultAssemblerCapacity bounds raw inbound bytes awaiting framing.
	DefaultAssemblerCapacity = 1024

	// maxFrameSize caps a single escaped frame. The largest real frames
	// (full sensor streaming rows) stay well under this.
	maxFrameSize = 256
)

// PacketFunc receives each fully reassembled, decoded packet.
type PacketFunc func(*Packet)

// ErrorFunc receives decode failures; the assembler resynchronizes and
// keeps going after reporting.
type ErrorFunc func(error)

// Assembler rebuilds packets from a byte stream. BLE notifications may
// split one frame across several notifications or coalesce several
// frames into one; Write accepts fragments in arrival order and invokes
// the packet callback once per complete frame. Garbage before a start
// delimiter is discarded.
type Assembler struct {
	mu      sync.Mutex
	buf     *ringbuffer.RingBuffer
	frame   []byte
	inFrame bool

	onPacket PacketFunc
	onError  ErrorFunc
	logger   *logrus.Logger
}

// NewAssembler creates an assembler delivering packets to onPacket.
// onError may be nil; decode failures are then only logged.
func NewAssembler(onPacket PacketFunc, onError ErrorFunc, logger *logrus.Logger) *Assembler {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Assembler{
		buf:      ringbuffer.New(DefaultAssemblerCapacity),
		frame:    make([]byte, 0, 64),
		onPacket: onPacket,
		onError:  onError,
		logger:   logger,
	}
}

// Write feeds raw notification bytes into the assembler. Complete frames
// are decoded and delivered synchronously on the calling goroutine,
// preserving arrival order.
func (a *Assembler) Write(data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.buf.Write(data); err != nil && errors.Is(err, ringbuffer.ErrIsFull) {
		// Oldest partial data is unrecoverable anyway; drop it and resync.
		a.reset()
		a.buf.Reset()
		a.report(fmt.Errorf("assembler overflow, dropped %d buffered bytes", DefaultAssemblerCapacity))
		if _, err := a.buf.Write(data); err != nil {
			a.report(fmt.Errorf("assembler cannot buffer %d byte notification: %w", len(data), err))
			return
		}
	}
	a.drain()
}

func (a *Assembler) drain() {
	var scratch [64]byte
	for {
		n, err := a.buf.Read(scratch[:])
		if n == 0 || errors.Is(err, ringbuffer.ErrIsEmpty) {
			return
		}
		for _, b := range scratch[:n] {
			a.feed(b)
		}
	}
}

func (a *Assembler) feed(b byte) {
	if !a.inFrame {
		if b == StartOfPacket {
			a.inFrame = true
			a.frame = append(a.frame[:0], b)
		}
		// Bytes outside a frame are line noise or a tail we already gave
		// up on; skip silently.
		return
	}

	a.frame = append(a.frame, b)
	if b == EndOfPacket {
		p, err := Decode(a.frame)
		a.reset()
		if err != nil {
			a.report(err)
			return
		}
		a.onPacket(p)
		return
	}
	if len(a.frame) > maxFrameSize {
		a.reset()
		a.report(fmt.Errorf("%w: no end delimiter within %d bytes", ErrFrameTooLong, maxFrameSize))
	}
}

func (a *Assembler) reset() {
	a.inFrame = false
	a.frame = a.frame[:0]
}

func (a *Assembler) report(err error) {
	a.logger.WithError(err).Debug("packet assembly failed")
	if a.onError != nil {
		a.onError(err)
	}
}
