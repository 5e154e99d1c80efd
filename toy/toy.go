// Package toy correlates the command/response/notification traffic of one
// Sphero-family peripheral over an adapter.Adapter and exposes the typed
// operation surface of the v2 API. A Toy owns the sequence-number space,
// the pending-response table and the notification listener registry for
// its connection.
package toy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wwj718/spherov2/adapter"
	"github.com/wwj718/spherov2/internal/commands"
	"github.com/wwj718/spherov2/internal/groutine"
	"github.com/wwj718/spherov2/internal/packet"
	"github.com/wwj718/spherov2/internal/spherodb"
)

// DefaultCommandTimeout bounds Execute and WaitFor when the caller's
// context carries no deadline.
const DefaultCommandTimeout = 10 * time.Second

// Packet is one decoded v2 API packet.
type Packet = packet.Packet

// NotifyKey identifies a notification stream by device and command ID.
type NotifyKey = commands.Key

// Notification keys awaitable via WaitFor and AddListener.
var (
	KeyBatteryStateChanged   = commands.BatteryStateChangedNotify
	KeySensorStreamingData   = commands.SensorStreamingDataNotify
	KeyCollisionDetected     = commands.CollisionDetectedNotify
	KeyGyroMax               = commands.GyroMaxNotify
	KeyPlayAnimationComplete = commands.PlayAnimationCompleteNotify
)

// BatteryState is the device-reported charge condition.
type BatteryState = commands.BatteryState

const (
	BatteryStateCharged     = commands.BatteryStateCharged
	BatteryStateCharging    = commands.BatteryStateCharging
	BatteryStateNotCharging = commands.BatteryStateNotCharging
	BatteryStateOK          = commands.BatteryStateOK
	BatteryStateLow         = commands.BatteryStateLow
	BatteryStateCritical    = commands.BatteryStateCritical
)

// PlaybackMode controls how a sound interacts with one already playing.
type PlaybackMode = commands.AudioPlaybackMode

const (
	PlaybackQueued           = commands.AudioPlaybackNoOptions
	PlaybackImmediately      = commands.AudioPlaybackImmediately
	PlaybackOnlyIfNotPlaying = commands.AudioPlaybackOnlyIfNotPlaying
)

// LegAction is a scripted droid stance transition.
type LegAction = commands.R2LegAction

const (
	LegActionStop      = commands.R2LegActionStop
	LegActionThreeLegs = commands.R2LegActionThreeLegs
	LegActionTwoLegs   = commands.R2LegActionTwoLegs
	LegActionWaddle    = commands.R2LegActionWaddle
)

// CollisionMethod selects the firmware collision filter.
type CollisionMethod = commands.CollisionDetectionMethod

const (
	CollisionOff     = commands.CollisionDetectionOff
	CollisionDefault = commands.CollisionDetectionDefault
)

// Options tunes a Toy session. The zero value selects defaults.
type Options struct {
	CommandTimeout time.Duration
}

// ListenerID identifies one registered notification listener.
type ListenerID uint64

type waiterKey struct {
	deviceID  byte
	commandID byte
	seq       byte
}

type waitResult struct {
	pkt *packet.Packet
	err error
}

type listenerKey struct {
	deviceID  byte
	commandID byte
}

type listenerEntry struct {
	id ListenerID
	fn func(*Packet)
}

// Toy is a live session with one peripheral.
//
// Execute assigns each outgoing command a sequence number and parks the
// caller on a one-shot channel keyed by (device, command, seq); inbound
// responses resolve exactly that channel. Unsolicited notifications carry
// sequence 0xFF and fan out to listeners; WaitFor parks on the 0xFF key.
type Toy struct {
	adapter adapter.Adapter
	caps    *Capability
	logger  *logrus.Logger
	timeout time.Duration

	asm *packet.Assembler

	mu      sync.Mutex
	seq     byte
	waiters map[waiterKey]chan waitResult
	closed  bool

	lmu       sync.RWMutex
	listeners map[listenerKey][]listenerEntry
	byID      map[ListenerID]listenerKey
	nextID    atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// New establishes a toy session over an already-dialed adapter: it writes
// the anti-DoS unlock phrase (models without the characteristic skip it)
// and subscribes to the API characteristic. The session fails outstanding
// commands if the underlying connection drops.
func New(ctx context.Context, a adapter.Adapter, model Model, opts *Options, logger *logrus.Logger) (*Toy, error) {
	if logger == nil {
		logger = logrus.New()
	}

	timeout := DefaultCommandTimeout
	if opts != nil && opts.CommandTimeout > 0 {
		timeout = opts.CommandTimeout
	}

	t := &Toy{
		adapter:   a,
		caps:      CapabilityFor(model),
		logger:    logger,
		timeout:   timeout,
		waiters:   make(map[waiterKey]chan waitResult),
		listeners: make(map[listenerKey][]listenerEntry),
		byID:      make(map[ListenerID]listenerKey),
	}
	t.asm = packet.NewAssembler(t.handlePacket, nil, logger)

	// Some models refuse API traffic until the unlock phrase lands.
	err := a.Write(ctx, spherodb.AntiDoSCharacteristic, []byte(spherodb.AntiDoSPhrase), true)
	switch {
	case err == nil:
		logger.Debug("Anti-DoS unlock written")
	case errors.Is(err, adapter.ErrCharacteristicNotFound):
		logger.Debug("Model has no anti-DoS characteristic, skipping unlock")
	default:
		return nil, fmt.Errorf("anti-DoS unlock failed: %w", err)
	}

	if err := a.Subscribe(spherodb.APICharacteristic, t.asm.Write); err != nil {
		return nil, fmt.Errorf("failed to subscribe to API notifications: %w", err)
	}

	if cw, ok := a.(interface{ Context() context.Context }); ok {
		groutine.Go(context.Background(), "toy-connection-monitor", func(context.Context) {
			<-cw.Context().Done()
			cause := context.Cause(cw.Context())
			if cause == nil || errors.Is(cause, context.Canceled) {
				cause = adapter.ErrNotConnected
			}
			t.connectionLost(cause)
		})
	}

	logger.WithFields(logrus.Fields{
		"model":   t.caps.Model,
		"address": a.Address(),
	}).Info("Toy session established")
	return t, nil
}

// Model returns the model the session was established as.
func (t *Toy) Model() Model {
	return t.caps.Model
}

// Capability returns the model's capability table.
func (t *Toy) Capability() *Capability {
	return t.caps
}

// Name returns the peripheral's advertised name.
func (t *Toy) Name() string {
	return t.adapter.Name()
}

// Address returns the peripheral's address.
func (t *Toy) Address() string {
	return t.adapter.Address()
}

// Close fails every pending wait and releases the transport. Close is
// idempotent.
func (t *Toy) Close() error {
	t.closeOnce.Do(func() {
		t.failPending(adapter.ErrNotConnected)
		t.closeErr = t.adapter.Close()
	})
	return t.closeErr
}

// connectionLost fails pending work after an out-of-band disconnect. A
// session torn down by Close stays quiet.
func (t *Toy) connectionLost(cause error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}
	t.logger.WithField("cause", cause).Warn("Connection lost, failing pending commands")
	t.failPending(cause)
}

// failPending marks the session closed and resolves every pending waiter
// with err. New Execute/WaitFor calls fail fast afterwards.
func (t *Toy) failPending(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, ch := range t.waiters {
		delete(t.waiters, key)
		ch <- waitResult{err: err}
	}
}

// nextSeqLocked returns the next sequence number, cycling 0x00-0xFE. 0xFF
// is reserved for unsolicited notifications and never assigned.
func (t *Toy) nextSeqLocked() byte {
	s := t.seq
	t.seq++
	if t.seq == packet.NotifySequence {
		t.seq = 0
	}
	return s
}

// Execute sends the command and, when it requests a response, blocks until
// the matching response arrives, the context expires, or the default
// command timeout elapses. Commands that do not request a response return
// (nil, nil) as soon as the write completes.
//
// A device rejection (non-zero error byte) returns a *CommandError. A
// timeout removes only this command's pending entry; listeners and other
// pending commands are untouched.
func (t *Toy) Execute(ctx context.Context, p *Packet) (*Packet, error) {
	send := *p

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, adapter.ErrNotConnected
	}
	send.Sequence = t.nextSeqLocked()

	var ch chan waitResult
	var key waiterKey
	if send.RequestsResponse() {
		key = waiterKey{send.DeviceID, send.CommandID, send.Sequence}
		ch = make(chan waitResult, 1)
		if prev, ok := t.waiters[key]; ok {
			// Sequence wrapped onto a still-pending command; the old wait
			// can never be answered unambiguously again.
			prev <- waitResult{err: ErrSuperseded}
		}
		t.waiters[key] = ch
	}
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"device_id":  fmt.Sprintf("0x%02X", send.DeviceID),
		"command_id": fmt.Sprintf("0x%02X", send.CommandID),
		"seq":        fmt.Sprintf("0x%02X", send.Sequence),
	}).Debug("Executing command")

	if err := t.adapter.Write(ctx, spherodb.APICharacteristic, send.Encode(), true); err != nil {
		t.dropWaiter(key, ch)
		return nil, err
	}
	if ch == nil {
		return nil, nil
	}
	return t.await(ctx, key, ch)
}

// WaitFor blocks until the next notification with the given key arrives.
// A newer WaitFor on the same key supersedes this one, resolving it with
// ErrSuperseded.
func (t *Toy) WaitFor(ctx context.Context, key NotifyKey) (*Packet, error) {
	wk := waiterKey{key.DeviceID, key.CommandID, packet.NotifySequence}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, adapter.ErrNotConnected
	}
	ch := make(chan waitResult, 1)
	if prev, ok := t.waiters[wk]; ok {
		prev <- waitResult{err: ErrSuperseded}
	}
	t.waiters[wk] = ch
	t.mu.Unlock()

	return t.await(ctx, wk, ch)
}

// await parks on ch under the context deadline, applying the default
// command timeout when the caller's context has none.
func (t *Toy) await(ctx context.Context, key waiterKey, ch chan waitResult) (*Packet, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	select {
	case res := <-ch:
		return res.pkt, res.err
	case <-ctx.Done():
		t.dropWaiter(key, ch)
		// A resolution may have raced the deadline; prefer it.
		select {
		case res := <-ch:
			return res.pkt, res.err
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: no answer for 0x%02X:0x%02X seq 0x%02X",
				ErrTimeout, key.deviceID, key.commandID, key.seq)
		}
		return nil, ctx.Err()
	}
}

// dropWaiter removes the pending entry only if it still holds ch; a
// concurrent resolve or supersede already took ownership otherwise.
func (t *Toy) dropWaiter(key waiterKey, ch chan waitResult) {
	if ch == nil {
		return
	}
	t.mu.Lock()
	if cur, ok := t.waiters[key]; ok && cur == ch {
		delete(t.waiters, key)
	}
	t.mu.Unlock()
}

// handlePacket routes one reassembled inbound packet. Responses resolve
// the waiter registered under their exact (device, command, seq) key.
// Notifications (seq 0xFF) resolve a parked WaitFor if present and always
// fan out to listeners, in registration order.
func (t *Toy) handlePacket(p *packet.Packet) {
	if p.Sequence != packet.NotifySequence {
		key := waiterKey{p.DeviceID, p.CommandID, p.Sequence}
		t.mu.Lock()
		ch, ok := t.waiters[key]
		if ok {
			delete(t.waiters, key)
		}
		t.mu.Unlock()

		if !ok {
			t.logger.WithField("packet", p.String()).Debug("Response with no pending command")
			return
		}
		if p.IsResponse() && p.Error != packet.ErrorSuccess {
			ch <- waitResult{err: &CommandError{DeviceID: p.DeviceID, CommandID: p.CommandID, Code: p.Error}}
		} else {
			ch <- waitResult{pkt: p}
		}
		return
	}

	wk := waiterKey{p.DeviceID, p.CommandID, packet.NotifySequence}
	t.mu.Lock()
	ch, ok := t.waiters[wk]
	if ok {
		delete(t.waiters, wk)
	}
	t.mu.Unlock()
	if ok {
		ch <- waitResult{pkt: p}
	}

	t.dispatchListeners(p)
}

func (t *Toy) dispatchListeners(p *packet.Packet) {
	lk := listenerKey{p.DeviceID, p.CommandID}

	t.lmu.RLock()
	entries := make([]listenerEntry, len(t.listeners[lk]))
	copy(entries, t.listeners[lk])
	t.lmu.RUnlock()

	for _, e := range entries {
		t.invokeListener(e, p)
	}
}

// invokeListener isolates listener panics so one broken callback cannot
// take down notification routing.
func (t *Toy) invokeListener(e listenerEntry, p *packet.Packet) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.WithFields(logrus.Fields{
				"listener_id": e.id,
				"panic":       r,
			}).Error("Notification listener panicked")
		}
	}()
	e.fn(p)
}

// AddListener registers fn for every notification with the given key.
// Multiple listeners per key all fire, in registration order, regardless
// of whether a WaitFor consumed the same notification.
func (t *Toy) AddListener(key NotifyKey, fn func(*Packet)) ListenerID {
	id := ListenerID(t.nextID.Add(1))
	lk := listenerKey{key.DeviceID, key.CommandID}

	t.lmu.Lock()
	t.listeners[lk] = append(t.listeners[lk], listenerEntry{id: id, fn: fn})
	t.byID[id] = lk
	t.lmu.Unlock()
	return id
}

// RemoveListener unregisters a listener. Removing an ID that was never
// added, or was already removed, returns a *NotFoundError.
func (t *Toy) RemoveListener(id ListenerID) error {
	t.lmu.Lock()
	defer t.lmu.Unlock()

	lk, ok := t.byID[id]
	if !ok {
		return &NotFoundError{Kind: "listener", Key: fmt.Sprintf("%d", id)}
	}
	delete(t.byID, id)

	entries := t.listeners[lk]
	for i, e := range entries {
		if e.id == id {
			t.listeners[lk] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(t.listeners[lk]) == 0 {
		delete(t.listeners, lk)
	}
	return nil
}
