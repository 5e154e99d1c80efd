package edu

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/wwj718/spherov2/internal/groutine"
	"github.com/wwj718/spherov2/toy"
)

// EventKind names one observable device occurrence.
type EventKind string

const (
	EventCollision   EventKind = "collision"
	EventFreefall    EventKind = "freefall"
	EventLanding     EventKind = "landing"
	EventGyroMax     EventKind = "gyro_max"
	EventCharging    EventKind = "charging"
	EventNotCharging EventKind = "not_charging"

	// EventSensorData fires after every merged streaming sample, for
	// callers that want the raw cadence rather than polling accessors.
	EventSensorData EventKind = "sensor_data"
)

var eventKinds = map[EventKind]struct{}{
	EventCollision:   {},
	EventFreefall:    {},
	EventLanding:     {},
	EventGyroMax:     {},
	EventCharging:    {},
	EventNotCharging: {},
	EventSensorData:  {},
}

// CollisionArgs is the decoded impact report carried by EventCollision.
type CollisionArgs = toy.CollisionData

// Event is one dispatched occurrence. Kind is always set; the payload
// fields are populated per kind.
type Event struct {
	Kind EventKind

	// Collision is set for EventCollision.
	Collision *CollisionArgs

	// GyroAxis is the firmware axis flag byte, set for EventGyroMax.
	GyroAxis byte
}

// Callback consumes dispatched events. Callbacks run on the dispatcher
// worker pool: they may block without stalling ingest, but slow callbacks
// build queue pressure and eventually cost dropped events.
type Callback func(Event)

// Token identifies one event registration.
type Token uint64

type registration struct {
	token Token
	cb    Callback
}

// eventRegistry is the token-keyed callback table behind Register and
// Unregister.
type eventRegistry struct {
	mu     sync.RWMutex
	next   Token
	byKind map[EventKind][]registration
	kinds  map[Token]EventKind
}

func newEventRegistry() *eventRegistry {
	return &eventRegistry{
		byKind: make(map[EventKind][]registration),
		kinds:  make(map[Token]EventKind),
	}
}

func (r *eventRegistry) add(kind EventKind, cb Callback) (Token, error) {
	if _, ok := eventKinds[kind]; !ok {
		return 0, &toy.InvalidArgumentError{What: "event kind", Value: kind}
	}
	if cb == nil {
		return 0, &toy.InvalidArgumentError{What: "event callback", Value: nil}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	t := r.next
	r.byKind[kind] = append(r.byKind[kind], registration{token: t, cb: cb})
	r.kinds[t] = kind
	return t, nil
}

// remove drops one registration. Unknown tokens are a no-op.
func (r *eventRegistry) remove(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kind, ok := r.kinds[t]
	if !ok {
		return
	}
	delete(r.kinds, t)
	regs := r.byKind[kind]
	for i, reg := range regs {
		if reg.token == t {
			r.byKind[kind] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
}

// callbacks snapshots the callbacks registered for kind. Delivery works
// off the snapshot, so unregistering during dispatch never races it.
func (r *eventRegistry) callbacks(kind EventKind) []Callback {
	r.mu.RLock()
	defer r.mu.RUnlock()
	regs := r.byKind[kind]
	if len(regs) == 0 {
		return nil
	}
	out := make([]Callback, len(regs))
	for i, reg := range regs {
		out[i] = reg.cb
	}
	return out
}

// Dispatcher lifecycle states (uint32 required for atomic ops).
const (
	dispatcherNotRunning uint32 = iota
	dispatcherRunning
	dispatcherStopping
)

// dispatcherStopTimeout bounds the wait for worker quiesce on Stop.
const dispatcherStopTimeout = 5 * time.Second

// EventMetrics provides lock-free counters for the event dispatcher.
//
// Dropped covers ring overwrites plus events published while the
// dispatcher was not running.
type EventMetrics struct {
	Processed int64
	Dropped   int64
}

func (m *EventMetrics) addProcessed(n int64) {
	atomic.AddInt64(&m.Processed, n)
}

func (m *EventMetrics) addDropped(n int64) {
	atomic.AddInt64(&m.Dropped, n)
}

func (m *EventMetrics) snapshot() EventMetrics {
	return EventMetrics{
		Processed: atomic.LoadInt64(&m.Processed),
		Dropped:   atomic.LoadInt64(&m.Dropped),
	}
}

// queuedEvent pairs an event with the callback snapshot taken at publish
// time.
type queuedEvent struct {
	event     Event
	callbacks []Callback
}

// eventDispatcher fans events out to a fixed worker pool through an
// overwrite-oldest ring buffer, so the sensor ingest path never blocks on
// a slow or stuck callback.
//
// All methods are thread-safe.
type eventDispatcher struct {
	queue   mpmc.RichOverlappedRingBuffer[queuedEvent]
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{} // closed when every worker has exited
	workers int
	logger  *logrus.Logger
	metrics EventMetrics
	state   uint32 // atomic dispatcher state constants
}

func newEventDispatcher(queueSize uint32, workers int, logger *logrus.Logger) *eventDispatcher {
	return &eventDispatcher{
		queue:   mpmc.NewOverlappedRingBuffer[queuedEvent](queueSize),
		wake:    make(chan struct{}, 1),
		workers: workers,
		logger:  logger,
	}
}

// Start spawns the worker pool.
// Returns an error if the dispatcher is already running or stopping.
func (d *eventDispatcher) Start() error {
	if !atomic.CompareAndSwapUint32(&d.state, dispatcherNotRunning, dispatcherRunning) {
		switch atomic.LoadUint32(&d.state) {
		case dispatcherStopping:
			return fmt.Errorf("event dispatcher is stopping, wait for it to finish")
		default:
			return fmt.Errorf("event dispatcher is already running")
		}
	}

	// Fresh channels per start cycle to prevent close-of-closed panics
	// on a stop/start sequence.
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		groutine.Go(context.Background(), fmt.Sprintf("edu-event-worker-%d", i),
			func(context.Context) {
				defer wg.Done()
				d.work()
			})
	}

	done := d.done
	go func() {
		wg.Wait()
		close(done)
	}()
	return nil
}

// Stop quiesces the pool: each worker drains the queue one final time and
// exits. Publishing after Stop begins counts as dropped.
func (d *eventDispatcher) Stop() error {
	if !atomic.CompareAndSwapUint32(&d.state, dispatcherRunning, dispatcherStopping) {
		switch atomic.LoadUint32(&d.state) {
		case dispatcherNotRunning:
			return nil
		default:
			// A concurrent Stop owns the shutdown; wait with it below.
		}
	} else {
		close(d.stop)
	}

	select {
	case <-d.done:
	case <-time.After(dispatcherStopTimeout):
		// Stop is already signaled; block until workers actually exit so
		// state stays consistent, then report the slow shutdown.
		<-d.done
		atomic.StoreUint32(&d.state, dispatcherNotRunning)
		return fmt.Errorf("event workers exceeded %s quiesce timeout", dispatcherStopTimeout)
	}
	atomic.StoreUint32(&d.state, dispatcherNotRunning)
	return nil
}

// publish enqueues ev for the given callback snapshot. Never blocks: a
// full queue overwrites the oldest pending event, which is counted as
// dropped.
func (d *eventDispatcher) publish(ev Event, cbs []Callback) {
	if atomic.LoadUint32(&d.state) != dispatcherRunning {
		d.metrics.addDropped(1)
		return
	}

	overwrites, err := d.queue.EnqueueM(queuedEvent{event: ev, callbacks: cbs})
	if err != nil {
		d.metrics.addDropped(1)
		d.logger.WithFields(logrus.Fields{
			"event": ev.Kind,
			"error": err,
		}).Warn("Event dropped, queue rejected it")
		return
	}
	if overwrites > 0 {
		d.metrics.addDropped(int64(overwrites))
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *eventDispatcher) work() {
	for {
		select {
		case <-d.stop:
			d.drain()
			return
		case <-d.wake:
			d.drain()
		}
	}
}

func (d *eventDispatcher) drain() {
	for !d.queue.IsEmpty() {
		item, err := d.queue.Dequeue()
		if err != nil {
			return
		}
		for _, cb := range item.callbacks {
			d.deliver(item.event, cb)
		}
		d.metrics.addProcessed(1)
	}
}

// deliver isolates one callback: a panic is recovered and logged so it
// cannot take down the worker or starve the remaining callbacks.
func (d *eventDispatcher) deliver(ev Event, cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"event": ev.Kind,
				"panic": r,
			}).Error("Event callback panicked")
		}
	}()
	cb(ev)
}
