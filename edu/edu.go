// Package edu is the high-level control surface for a connected toy:
// blocking motion primitives, LED and animatronic helpers, fused sensor
// state, and a callback event system, in the style of the Sphero Edu
// programming model.
//
// An API owns one toy session. A background control loop re-asserts the
// commanded drive state every KeepAliveInterval so the firmware's
// command watchdog never halts a long roll, and streamed sensor rows are
// folded into a snapshot the accessors read without touching the device.
package edu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wwj718/spherov2/internal/groutine"
	"github.com/wwj718/spherov2/toy"
)

const (
	// DefaultKeepAliveInterval keeps the control loop well under the
	// firmware's ~2 s command watchdog.
	DefaultKeepAliveInterval = 800 * time.Millisecond

	// DefaultSensorInterval is the streaming cadence requested from the
	// device.
	DefaultSensorInterval = 250 * time.Millisecond

	// DefaultEventQueueSize bounds the dispatcher ring.
	DefaultEventQueueSize = 64

	// DefaultEventWorkers sizes the callback worker pool.
	DefaultEventWorkers = 4
)

// closeGraceTimeout bounds the best-effort sleep command during Close.
const closeGraceTimeout = 2 * time.Second

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("edu session closed")

// Options tunes a session. Zero or missing fields select the defaults.
type Options struct {
	// KeepAliveInterval is the control loop cadence.
	KeepAliveInterval time.Duration

	// SensorInterval is the requested sensor streaming cadence.
	SensorInterval time.Duration

	// EventQueueSize bounds pending events; overflow drops the oldest.
	EventQueueSize int

	// EventWorkers is the number of callback delivery goroutines.
	EventWorkers int
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.KeepAliveInterval <= 0 {
		out.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if out.SensorInterval <= 0 {
		out.SensorInterval = DefaultSensorInterval
	}
	if out.EventQueueSize <= 0 {
		out.EventQueueSize = DefaultEventQueueSize
	}
	if out.EventWorkers <= 0 {
		out.EventWorkers = DefaultEventWorkers
	}
	return out
}

// API drives one toy session.
//
// All methods are safe for concurrent use. Long-running calls (Roll,
// Spin, RawMotor with a duration, Fade, Strobe) block the caller;
// cancelling their context aborts the pacing early.
type API struct {
	toy    *toy.Toy
	opts   Options
	logger *logrus.Logger

	motionMu   sync.Mutex
	motion     MotionState
	stabilized atomic.Bool // mirror of motion.Stabilization for the ingest path

	ledMu     sync.Mutex
	ledColors map[toy.LEDChannel]Color
	ledLevels map[toy.LEDChannel]uint8

	sensors    *sensorCore
	registry   *eventRegistry
	dispatcher *eventDispatcher

	// Streaming masks are fixed before listeners attach and read-only
	// from then on.
	streamMask uint32
	extMask    uint32

	toyListeners []toy.ListenerID

	startMu    sync.Mutex
	started    bool
	loopCtx    context.Context
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	woke      atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewAPI wraps t without touching the device. Call Start to wake it and
// bring the session up.
func NewAPI(t *toy.Toy, opts *Options, logger *logrus.Logger) *API {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	a := &API{
		toy:       t,
		opts:      opts.withDefaults(),
		logger:    logger,
		ledColors: make(map[toy.LEDChannel]Color),
		ledLevels: make(map[toy.LEDChannel]uint8),
		sensors:   newSensorCore(time.Now()),
		registry:  newEventRegistry(),
	}
	a.dispatcher = newEventDispatcher(uint32(a.opts.EventQueueSize), a.opts.EventWorkers, logger)

	// Stabilization is engaged on wake; the session assumes it until
	// told otherwise.
	a.motion.Stabilization = true
	a.stabilized.Store(true)
	return a
}

// Connect wraps t and starts the session, taking ownership of the toy:
// it is closed with the session, or immediately when startup fails.
func Connect(ctx context.Context, t *toy.Toy, opts *Options, logger *logrus.Logger) (*API, error) {
	a := NewAPI(t, opts, logger)
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Start wakes the device and brings the session up: event workers,
// initial drive and animatronic state, sensor and notification
// subscriptions, and the keep-alive control loop.
func (a *API) Start(ctx context.Context) (err error) {
	a.startMu.Lock()
	defer a.startMu.Unlock()
	if a.closed.Load() {
		return ErrClosed
	}
	if a.started {
		return errors.New("edu session already started")
	}

	caps := a.toy.Capability()
	if caps.Sensors != nil {
		a.streamMask = caps.Sensors.GroupMask(
			toy.SensorAttitude, toy.SensorAccelerometer, toy.SensorLocator, toy.SensorVelocity)
	}
	if caps.ExtendedSensors != nil {
		a.extMask = caps.ExtendedSensors.GroupMask(toy.SensorGyroscope)
	}

	if err = a.dispatcher.Start(); err != nil {
		return err
	}
	a.attachToyListeners()
	defer func() {
		if err != nil {
			a.detachToyListeners()
			if serr := a.dispatcher.Stop(); serr != nil {
				a.logger.WithField("error", serr).Debug("Dispatcher stop after failed start")
			}
		}
	}()

	if err = a.toy.Wake(ctx); err != nil {
		return fmt.Errorf("waking device: %w", err)
	}
	a.woke.Store(true)

	if err = a.pushInitialState(ctx); err != nil {
		return err
	}
	if err = a.subscribe(ctx); err != nil {
		return err
	}

	a.loopCtx, a.loopCancel = context.WithCancel(context.Background())
	a.loopDone = make(chan struct{})
	groutine.Go(a.loopCtx, "edu-control-loop", a.runControlLoop)
	a.started = true

	a.logger.WithFields(logrus.Fields{
		"model":      a.toy.Model().String(),
		"keep_alive": a.opts.KeepAliveInterval,
	}).Info("Edu session started")
	return nil
}

// pushInitialState puts the device in the session's base state:
// stabilization engaged, stopped at heading zero, droid head centered
// and up on three legs.
func (a *API) pushInitialState(ctx context.Context) error {
	caps := a.toy.Capability()
	if caps.HasStabilization {
		if err := a.toy.SetStabilization(ctx, true); err != nil {
			return fmt.Errorf("initial stabilization: %w", err)
		}
	}
	if caps.Drives {
		a.motionMu.Lock()
		err := a.driveLocked(ctx)
		a.motionMu.Unlock()
		if err != nil {
			return fmt.Errorf("initial drive state: %w", err)
		}
	}
	if caps.HasHead {
		if err := a.toy.SetHeadPosition(ctx, 0); err != nil {
			return fmt.Errorf("centering head: %w", err)
		}
	}
	if caps.HasLegs {
		if err := a.toy.PerformLegAction(ctx, toy.LegActionThreeLegs); err != nil {
			return fmt.Errorf("initial stance: %w", err)
		}
	}
	return nil
}

// subscribe enables the notification streams the session consumes:
// sensor streaming at the configured cadence, collision detection with
// the stock thresholds, battery state and gyro saturation notifies.
func (a *API) subscribe(ctx context.Context) error {
	if a.streamMask != 0 {
		interval := uint16(a.opts.SensorInterval / time.Millisecond)
		if err := a.toy.SetSensorStreamingMask(ctx, interval, 0, a.streamMask); err != nil {
			return fmt.Errorf("sensor streaming mask: %w", err)
		}
	}
	if a.extMask != 0 {
		if err := a.toy.SetExtendedSensorStreamingMask(ctx, a.extMask); err != nil {
			return fmt.Errorf("extended sensor streaming mask: %w", err)
		}
	}
	if err := a.toy.ConfigureCollisionDetection(ctx, toy.CollisionDefault, 90, 90, 130, 130, 1); err != nil {
		return fmt.Errorf("collision detection: %w", err)
	}
	if err := a.toy.EnableBatteryStateChangedNotify(ctx, true); err != nil {
		return fmt.Errorf("battery notifications: %w", err)
	}
	if err := a.toy.EnableGyroMaxNotify(ctx, true); err != nil {
		return fmt.Errorf("gyro max notifications: %w", err)
	}
	return nil
}

func (a *API) attachToyListeners() {
	a.toyListeners = []toy.ListenerID{
		a.toy.AddSensorStreamingListener(a.onSensorRow),
		a.toy.AddCollisionListener(a.onCollision),
		a.toy.AddBatteryStateChangedListener(a.onBatteryState),
		a.toy.AddGyroMaxListener(a.onGyroMax),
	}
}

func (a *API) detachToyListeners() {
	for _, id := range a.toyListeners {
		_ = a.toy.RemoveListener(id)
	}
	a.toyListeners = nil
}

// onSensorRow decodes a streamed row against the session's masks and
// folds it into the fused snapshot. Runs on the notification pump
// goroutine, so it must never block on session locks.
func (a *API) onSensorRow(values []float64) {
	groups := a.toy.Capability().DecodeSensorRow(a.streamMask, a.extMask, values)
	if len(groups) == 0 {
		return
	}
	kinds := a.sensors.ingest(time.Now(), groups, a.stabilized.Load())
	for _, kind := range kinds {
		a.publish(Event{Kind: kind})
	}
}

func (a *API) onCollision(data toy.CollisionData) {
	a.publish(Event{Kind: EventCollision, Collision: &data})
}

// onBatteryState folds the firmware's battery states into charging and
// not-charging transitions.
func (a *API) onBatteryState(state toy.BatteryState) {
	kind := EventNotCharging
	if state == toy.BatteryStateCharged || state == toy.BatteryStateCharging {
		kind = EventCharging
	}
	a.publish(Event{Kind: kind})
}

func (a *API) onGyroMax(axis byte) {
	a.publish(Event{Kind: EventGyroMax, GyroAxis: axis})
}

// publish hands an event to the dispatcher with the callback snapshot
// for its kind. No registrations, no queueing.
func (a *API) publish(ev Event) {
	cbs := a.registry.callbacks(ev.Kind)
	if len(cbs) == 0 {
		return
	}
	a.dispatcher.publish(ev, cbs)
}

// Register subscribes cb to an event kind and returns a token for
// Unregister. Unknown kinds and nil callbacks are rejected.
func (a *API) Register(kind EventKind, cb Callback) (Token, error) {
	return a.registry.add(kind, cb)
}

// Unregister drops one registration. Unknown or already-removed tokens
// are a no-op.
func (a *API) Unregister(token Token) {
	a.registry.remove(token)
}

// EventMetrics returns the dispatcher's throughput counters.
func (a *API) EventMetrics() EventMetrics {
	return a.dispatcher.metrics.snapshot()
}

// Toy exposes the wrapped device for operations outside the session
// surface.
func (a *API) Toy() *toy.Toy {
	return a.toy
}

func (a *API) guard() error {
	if a.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Close tears the session down: the control loop is stopped and joined,
// event workers quiesce, the device is asked to sleep (best effort), and
// the transport disconnects. Safe to call more than once. Blocking calls
// already in flight run to completion first.
func (a *API) Close() error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)

		a.startMu.Lock()
		started := a.started
		a.startMu.Unlock()

		if started {
			a.loopCancel()
			<-a.loopDone
		}
		a.detachToyListeners()
		if err := a.dispatcher.Stop(); err != nil {
			a.logger.WithField("error", err).Warn("Event dispatcher stop")
		}

		if a.woke.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), closeGraceTimeout)
			if err := a.toy.Sleep(ctx); err != nil {
				a.logger.WithField("error", err).Debug("Sleep on close failed")
			}
			cancel()
		}
		a.closeErr = a.toy.Close()
		a.logger.Debug("Edu session closed")
	})
	return a.closeErr
}
