// Package goble implements the adapter.Adapter transport on top of the
// go-ble stack. Dialing performs connect plus full profile discovery, so a
// returned adapter is ready for writes and subscriptions immediately.
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/wwj718/spherov2/adapter"
	"github.com/wwj718/spherov2/internal/groutine"
	"github.com/wwj718/spherov2/internal/ringchan"
	"github.com/wwj718/spherov2/internal/spherodb"
)

const (
	// DefaultWriteChunkSize is the maximum number of bytes to write in a single BLE operation.
	// BLE 4.0/4.1 spec defines ATT_MTU of 23 bytes (20 bytes payload after ATT header overhead).
	// Keeping chunks at 20 bytes ensures compatibility with all BLE versions.
	DefaultWriteChunkSize = 20

	// DefaultWriteDelay is the delay between consecutive write chunks.
	// This prevents overwhelming the BLE peripheral's receive buffer and ensures reliable delivery.
	DefaultWriteDelay = 10 * time.Millisecond

	// DefaultConnectTimeout bounds dial plus profile discovery.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultQueueSize is the capacity of the notification buffer between
	// the BLE callback and the pump goroutine.
	DefaultQueueSize = 128
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = func() (ble.Device, error) {
	return newDefaultDevice()
}

// Options configures Dial. The zero value selects defaults.
type Options struct {
	ConnectTimeout time.Duration
	QueueSize      int
	WriteChunkSize int
	WriteDelay     time.Duration
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = DefaultConnectTimeout
	}
	if out.QueueSize <= 0 {
		out.QueueSize = DefaultQueueSize
	}
	if out.WriteChunkSize <= 0 {
		out.WriteChunkSize = DefaultWriteChunkSize
	}
	if out.WriteDelay <= 0 {
		out.WriteDelay = DefaultWriteDelay
	}
	return out
}

// notification carries one characteristic update from the BLE callback to
// the pump goroutine.
type notification struct {
	uuid string
	data []byte
}

// charEntry pairs a live characteristic handle with its owning service UUID
type charEntry struct {
	handle  *ble.Characteristic
	service string
}

// BLEAdapter is a live go-ble connection implementing adapter.Adapter.
//
// Inbound notifications are enqueued from the BLE callback onto a bounded
// drop-oldest buffer and delivered by a single pump goroutine, so a slow
// subscriber never blocks the BLE stack.
type BLEAdapter struct {
	logger *logrus.Logger
	opts   Options

	address string
	name    string

	// opMutex serializes writes and reads: one transport operation
	// outstanding per connection.
	opMutex sync.Mutex

	connMutex   sync.RWMutex
	client      ble.Client
	isConnected bool
	chars       map[string]charEntry

	subMutex sync.RWMutex
	subs     map[string]adapter.NotifyFunc

	queue    *ringchan.RingChannel[notification]
	ctx      context.Context
	cancel   context.CancelCauseFunc
	pumpDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

var _ adapter.Adapter = (*BLEAdapter)(nil)

// Dial connects to the peripheral at address and discovers its full GATT
// profile. On any failure the connection is torn down before the error is
// returned; no goroutines are leaked.
//
// The returned adapter's lifetime is tied to ctx: cancelling it fails
// outstanding operations and stops notification delivery.
func Dial(ctx context.Context, address string, opts *Options, logger *logrus.Logger) (*BLEAdapter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if address == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	o := opts.withDefaults()

	logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": o.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	// Create a BLE device using the factory (allows for mocking in tests)
	dev, err := DeviceFactory()
	if err != nil {
		logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)

	connCtx, connCancel := context.WithTimeout(ctx, o.ConnectTimeout)
	defer connCancel()

	logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := ble.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	chars := make(map[string]charEntry)
	for _, svc := range profile.Services {
		svcUUID := spherodb.NormalizeUUID(svc.UUID.String())
		logger.WithField("service_uuid", svcUUID).Debug("Found service UUID")
		for _, char := range svc.Characteristics {
			charUUID := spherodb.NormalizeUUID(char.UUID.String())
			logger.WithFields(logrus.Fields{
				"service_uuid": svcUUID,
				"char_uuid":    charUUID,
				"known_name":   spherodb.LookupCharacteristic(charUUID),
			}).Debug("Found characteristic UUID")
			chars[charUUID] = charEntry{handle: char, service: svcUUID}
		}
	}

	a := &BLEAdapter{
		logger:      logger,
		opts:        o,
		address:     address,
		name:        client.Name(),
		client:      client,
		isConnected: true,
		chars:       chars,
		subs:        make(map[string]adapter.NotifyFunc),
		queue:       ringchan.New[notification](o.QueueSize),
		pumpDone:    make(chan struct{}),
	}
	a.ctx, a.cancel = context.WithCancelCause(ctx)

	groutine.Go(a.ctx, "ble-notify-pump", a.pump)

	// Monitor the client's disconnect channel where the platform provides
	// one, so an out-of-band drop fails outstanding work instead of hanging it.
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(a.ctx, "ble-disconnect-monitor", func(mctx context.Context) {
			select {
			case <-dc.Disconnected():
				logger.WithField("address", address).Warn("BLE stack reported disconnection, cancelling connection context")
				a.connMutex.Lock()
				a.isConnected = false
				a.connMutex.Unlock()
				a.cancel(adapter.ErrNotConnected)
			case <-mctx.Done():
			}
		})
	} else {
		logger.Debug("Client does not support Disconnected() channel")
	}

	logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(profile.Services),
		"characteristics": len(chars),
	}).Info("BLE device connected successfully")
	return a, nil
}

// Context returns the connection context. It is cancelled when the
// connection drops or the adapter is closed; context.Cause carries the
// reason. Layers above watch it to fail outstanding requests.
func (a *BLEAdapter) Context() context.Context {
	return a.ctx
}

// Address returns the peripheral address the adapter was dialed with.
func (a *BLEAdapter) Address() string {
	return a.address
}

// Name returns the peripheral name reported by the BLE stack at dial time.
func (a *BLEAdapter) Name() string {
	return a.name
}

func (a *BLEAdapter) IsConnected() bool {
	a.connMutex.RLock()
	defer a.connMutex.RUnlock()
	return a.client != nil && a.isConnected
}

// snapshot returns the client and characteristic entry for uuid without
// holding any lock across the subsequent network call.
func (a *BLEAdapter) snapshot(uuid string) (ble.Client, charEntry, error) {
	norm := spherodb.NormalizeUUID(uuid)

	a.connMutex.RLock()
	defer a.connMutex.RUnlock()

	if a.client == nil || !a.isConnected {
		return nil, charEntry{}, adapter.ErrNotConnected
	}
	entry, ok := a.chars[norm]
	if !ok {
		return nil, charEntry{}, &adapter.NotFoundError{Resource: "characteristic", UUIDs: []string{uuid}}
	}
	return a.client, entry, nil
}

// Write sends data to the characteristic in chunks of at most
// WriteChunkSize bytes with WriteDelay between chunks. The whole write is
// serialized against other transport operations.
func (a *BLEAdapter) Write(ctx context.Context, uuid string, data []byte, withResponse bool) error {
	a.opMutex.Lock()
	defer a.opMutex.Unlock()

	client, entry, err := a.snapshot(uuid)
	if err != nil {
		return &adapter.TransportError{Op: "write", UUID: uuid, Err: err}
	}

	for len(data) > 0 {
		if err := ctxErr(ctx); err != nil {
			return &adapter.TransportError{Op: "write", UUID: uuid, Err: err}
		}
		n := len(data)
		if n > a.opts.WriteChunkSize {
			n = a.opts.WriteChunkSize
		}
		if err := client.WriteCharacteristic(entry.handle, data[:n], !withResponse); err != nil {
			a.logger.WithFields(logrus.Fields{
				"char_uuid":    uuid,
				"service_uuid": entry.service,
				"error":        err,
			}).Error("Failed to write to characteristic")
			return &adapter.TransportError{Op: "write", UUID: uuid, Err: NormalizeError(err)}
		}
		data = data[n:]
		if len(data) > 0 {
			select {
			case <-ctx.Done():
				return &adapter.TransportError{Op: "write", UUID: uuid, Err: ctxErr(ctx)}
			case <-time.After(a.opts.WriteDelay):
			}
		}
	}
	return nil
}

// Read reads the characteristic's current value.
func (a *BLEAdapter) Read(ctx context.Context, uuid string) ([]byte, error) {
	a.opMutex.Lock()
	defer a.opMutex.Unlock()

	if err := ctxErr(ctx); err != nil {
		return nil, &adapter.TransportError{Op: "read", UUID: uuid, Err: err}
	}

	client, entry, err := a.snapshot(uuid)
	if err != nil {
		return nil, &adapter.TransportError{Op: "read", UUID: uuid, Err: err}
	}

	data, err := client.ReadCharacteristic(entry.handle)
	if err != nil {
		return nil, &adapter.TransportError{Op: "read", UUID: uuid, Err: NormalizeError(err)}
	}
	return data, nil
}

// Subscribe registers fn for notifications from the characteristic. The
// BLE callback only copies the payload and enqueues it; fn runs on the
// pump goroutine.
func (a *BLEAdapter) Subscribe(uuid string, fn adapter.NotifyFunc) error {
	norm := spherodb.NormalizeUUID(uuid)

	client, entry, err := a.snapshot(uuid)
	if err != nil {
		return &adapter.TransportError{Op: "subscribe", UUID: uuid, Err: err}
	}

	a.subMutex.Lock()
	_, resubscribe := a.subs[norm]
	a.subs[norm] = fn
	a.subMutex.Unlock()

	// The remote subscription survives a handler replacement.
	if resubscribe {
		a.logger.WithField("char_uuid", uuid).Debug("Replaced notification handler")
		return nil
	}

	err = client.Subscribe(entry.handle, false, func(data []byte) {
		// The BLE stack may reuse the buffer after the callback returns.
		buf := make([]byte, len(data))
		copy(buf, data)
		if a.ctx.Err() != nil {
			return
		}
		if dropped := a.queue.ForceSend(notification{uuid: norm, data: buf}); dropped {
			a.logger.WithField("char_uuid", norm).Warn("Notification queue full, dropped oldest")
		}
	})
	if err != nil {
		a.subMutex.Lock()
		delete(a.subs, norm)
		a.subMutex.Unlock()
		a.logger.WithFields(logrus.Fields{
			"char_uuid": uuid,
			"error":     err,
		}).Error("Failed to subscribe to characteristic notifications")
		return &adapter.TransportError{Op: "subscribe", UUID: uuid, Err: NormalizeError(err)}
	}

	a.logger.WithFields(logrus.Fields{
		"service_uuid": entry.service,
		"char_uuid":    uuid,
	}).Info("Subscribed to characteristic notifications")
	return nil
}

// Unsubscribe stops notification delivery for the characteristic.
func (a *BLEAdapter) Unsubscribe(uuid string) error {
	norm := spherodb.NormalizeUUID(uuid)

	client, entry, err := a.snapshot(uuid)
	if err != nil {
		return &adapter.TransportError{Op: "unsubscribe", UUID: uuid, Err: err}
	}

	a.subMutex.Lock()
	delete(a.subs, norm)
	a.subMutex.Unlock()

	if err := tryUnsubscribe(client, entry.handle); err != nil {
		a.logger.WithFields(logrus.Fields{
			"char_uuid": uuid,
			"error":     err,
		}).Error("Failed to unsubscribe from characteristic notifications")
		return &adapter.TransportError{Op: "unsubscribe", UUID: uuid, Err: err}
	}

	a.logger.WithField("char_uuid", uuid).Debug("Unsubscribed from characteristic notifications")
	return nil
}

// tryUnsubscribe attempts both notify and indicate modes and fails only if
// both fail.
func tryUnsubscribe(client ble.Client, char *ble.Characteristic) error {
	err1 := NormalizeError(client.Unsubscribe(char, false)) // notify
	err2 := NormalizeError(client.Unsubscribe(char, true))  // indicate
	if err1 != nil && err2 != nil {
		return fmt.Errorf("notify=%v, indicate=%v", err1, err2)
	}
	return nil
}

// Close disconnects the peripheral and stops the notification pump,
// waiting for it to quiesce. Close is idempotent.
func (a *BLEAdapter) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.close()
	})
	return a.closeErr
}

func (a *BLEAdapter) close() error {
	a.connMutex.Lock()
	client := a.client
	wasConnected := a.isConnected
	a.client = nil
	a.isConnected = false
	a.connMutex.Unlock()

	if client == nil {
		return nil
	}

	a.logger.WithField("address", a.address).Info("Disconnecting BLE device...")

	a.subMutex.Lock()
	subscribed := make([]string, 0, len(a.subs))
	for uuid := range a.subs {
		subscribed = append(subscribed, uuid)
	}
	a.subs = make(map[string]adapter.NotifyFunc)
	a.subMutex.Unlock()

	// Unsubscribe from remote notifications before dropping the link so the
	// peripheral stops pushing into a dead connection.
	if wasConnected {
		for _, uuid := range subscribed {
			if entry, ok := a.chars[uuid]; ok {
				if err := tryUnsubscribe(client, entry.handle); err != nil {
					a.logger.WithFields(logrus.Fields{
						"char_uuid": uuid,
						"error":     err,
					}).Warn("Failed to unsubscribe during disconnect")
				}
			}
		}
	}

	var disconnectErr error
	if wasConnected {
		disconnectErr = NormalizeError(client.CancelConnection())
	}

	// Stop the pump and wait for it to quiesce. The queue itself is never
	// closed: late BLE callbacks bail out on the cancelled context instead
	// of sending into a closed channel.
	a.cancel(nil)
	<-a.pumpDone

	if disconnectErr != nil {
		a.logger.WithField("error", disconnectErr).Warn("BLE device disconnected with errors")
	} else {
		a.logger.Info("BLE device disconnected successfully")
	}
	return disconnectErr
}

// pump delivers queued notifications to the registered handler, one at a
// time, preserving arrival order per characteristic.
func (a *BLEAdapter) pump(ctx context.Context) {
	defer close(a.pumpDone)

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-a.queue.C():
			if !ok {
				return
			}
			a.subMutex.RLock()
			fn := a.subs[n.uuid]
			a.subMutex.RUnlock()
			if fn == nil {
				continue
			}
			a.deliver(fn, n)
		}
	}
}

// deliver invokes one handler, isolating panics so a broken subscriber
// cannot kill the pump.
func (a *BLEAdapter) deliver(fn adapter.NotifyFunc, n notification) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithFields(logrus.Fields{
				"char_uuid": n.uuid,
				"panic":     r,
			}).Error("Notification handler panicked")
		}
	}()
	fn(n.data)
}

// ctxErr maps a context failure onto the transport error taxonomy.
func ctxErr(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return adapter.ErrTimeout
	}
	return err
}
