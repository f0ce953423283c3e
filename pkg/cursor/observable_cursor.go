package cursor

import (
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/l7mp/livecursor/pkg/observable"
	"github.com/l7mp/livecursor/pkg/zone"
)

// Options configure an ObservableCursor.
type Options struct {
	// Logger is the logger. Defaults to a discard logger.
	Logger logr.Logger
	// Environment provides the zone of the host application. The cursor forks its own zone off
	// the current zone. Defaults to zone.Noop.
	Environment zone.Environment
	// Clock drives the debounce timers. Defaults to the real clock.
	Clock clock.WithDelayedExecution
	// InitialDebounce is the debounce delay of the initial broadcast. Defaults to zero.
	InitialDebounce time.Duration
	// RedirectDebounce is the debounce delay of the parent zone nudges of zoned documents.
	// Defaults to zone.DefaultNudgeDelay.
	RedirectDebounce time.Duration
	// SkipEmptyInitial suppresses the initial broadcast if the live query starts with an empty
	// result set. The first broadcast is then made by the first added document.
	SkipEmptyInitial bool
}

// ObservableCursor multiplexes a single live query of a store cursor to any number of observers.
//
// The live query starts on the first subscription and stops when the last observer unsubscribes.
// The initial burst of added documents is coalesced into a single broadcast. Afterwards every
// change is broadcast immediately, and late subscribers first receive the current result set.
// Each broadcast carries a fresh copy of the result set, shared by all observers.
type ObservableCursor[T any] struct {
	cursor      Cursor[T]
	zone        zone.Zone
	runners     *zone.Runners
	initial     *zone.Debouncer
	data        []T
	observers   []*observable.Subscriber[[]T]
	count       *observable.Subject[int]
	handle      Handle
	epoch       uint64
	starting    bool
	initialized bool
	skipEmpty   bool
	disposed    bool
	queue       observable.Serial
	mu          sync.Mutex
	log         logr.Logger
}

var _ observable.Source[[]any] = &ObservableCursor[any]{}

// Create wraps a store cursor with the default options.
func Create[T any](c Cursor[T]) *ObservableCursor[T] {
	return New(c, Options{})
}

// New wraps a store cursor. The live query does not start until the first subscription.
func New[T any](c Cursor[T], opts Options) *ObservableCursor[T] {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	nudgeDelay := opts.RedirectDebounce
	if nudgeDelay == 0 {
		nudgeDelay = zone.DefaultNudgeDelay
	}

	log := logger.WithName("observable-cursor")
	return &ObservableCursor[T]{
		cursor:    c,
		zone:      zone.ForkRx(opts.Environment),
		runners:   zone.NewRunners(clk, nudgeDelay, log),
		initial:   zone.NewDebouncer(clk, opts.InitialDebounce),
		data:      []T{},
		observers: []*observable.Subscriber[[]T]{},
		count:     observable.NewSubject[int](),
		skipEmpty: opts.SkipEmptyInitial,
		log:       log,
	}
}

// Cursor returns the wrapped store cursor.
func (c *ObservableCursor[T]) Cursor() Cursor[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Zone returns the zone the live query and the deliveries run in.
func (c *ObservableCursor[T]) Zone() zone.Zone { return c.zone }

// Active returns true while a live query is running.
func (c *ObservableCursor[T]) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle != nil || c.starting
}

// Size returns the current size of the result set.
func (c *ObservableCursor[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Subscribe registers an observer. If the cursor has already broadcast the result set, the
// observer receives the current result set before any later broadcast. The first subscription
// starts the live query. Unsubscribing the last observer stops the cursor.
//
// Deliveries are serialized. The replay is made before Subscribe returns, unless a delivery is
// already in progress: when Subscribe is called from an observer, the replay follows the current
// delivery, and when another goroutine (such as the initial debounce timer) is delivering, the
// replay is made on that goroutine once it is done with the pending deliveries.
func (c *ObservableCursor[T]) Subscribe(o observable.Observer[[]T]) observable.Subscription {
	sub := observable.NewSubscriber(o)
	sub.Add(func() { c.unsubscribe(sub) })

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		sub.Error(ErrDisposed)
		return sub
	}

	if c.initialized {
		snapshot, epoch := c.snapshotLocked(), c.epoch
		c.queue.Push(func() {
			if !c.current(epoch) {
				return
			}
			c.zone.Run(func() any { sub.Next(snapshot); return nil })
		})
	}

	start := c.handle == nil && !c.starting
	if start {
		// observers completed by an earlier stop are dropped when the live query restarts
		c.observers = slices.DeleteFunc(c.observers, func(o *observable.Subscriber[[]T]) bool {
			return o.Closed()
		})
	}
	c.observers = append(c.observers, sub)

	var epoch uint64
	if start {
		c.starting = true
		c.epoch++
		epoch = c.epoch
	}
	cursor := c.cursor
	c.mu.Unlock()

	c.queue.Drain()

	if start {
		c.start(cursor, epoch)
	}

	return sub
}

func (c *ObservableCursor[T]) unsubscribe(sub *observable.Subscriber[[]T]) {
	c.mu.Lock()
	i := slices.Index(c.observers, sub)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	c.observers = slices.Delete(c.observers, i, i+1)
	active := c.handle != nil || c.starting
	empty := active && !slices.ContainsFunc(c.observers, func(o *observable.Subscriber[[]T]) bool {
		return !o.Closed()
	})
	c.mu.Unlock()

	if empty {
		c.log.V(4).Info("last observer unsubscribed")
		c.Stop()
	}
}

// start runs the live query inside the zone of the cursor.
func (c *ObservableCursor[T]) start(cursor Cursor[T], epoch uint64) {
	c.log.V(2).Info("starting live query")

	callbacks := ObserveCallbacks[T]{
		AddedAt:   func(doc T, at int, before string) { c.addedAt(epoch, doc, at, before) },
		ChangedAt: func(doc, old T, at int) { c.changedAt(epoch, doc, old, at) },
		RemovedAt: func(doc T, at int) { c.removedAt(epoch, doc, at) },
		MovedTo:   func(doc T, from, to int) { c.movedTo(epoch, doc, from, to) },
		Error:     func(err error) { c.fail(epoch, err) },
	}

	var handle Handle
	var err error
	c.zone.Run(func() any {
		handle, err = cursor.Observe(callbacks)
		return nil
	})
	if err != nil {
		c.fail(epoch, err)
		return
	}
	if handle == nil {
		handle = HandleFunc(func() {})
	}

	c.mu.Lock()
	if c.epoch != epoch {
		// stopped while the live query was starting
		c.mu.Unlock()
		handle.Stop()
		return
	}
	c.handle = handle
	c.starting = false
	initialized := c.initialized
	c.mu.Unlock()

	// the burst delivered by Observe is flushed as one broadcast, even if it was empty
	if !initialized {
		c.initial.Trigger(func() { c.flushInitial(epoch) })
	}
}

func (c *ObservableCursor[T]) addedAt(epoch uint64, doc T, at int, before string) {
	doc = c.rebind(doc)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}

	at = max(0, min(at, len(c.data)))
	c.data = slices.Insert(c.data, at, doc)
	c.log.V(8).Info("added", "index", at, "before", before, "size", len(c.data))

	if !c.initialized {
		// the initial burst is flushed when Observe returns
		rearm := !c.starting
		c.mu.Unlock()
		if rearm {
			c.initial.Trigger(func() { c.flushInitial(epoch) })
		}
		return
	}

	c.broadcastLocked()
	c.mu.Unlock()
	c.queue.Drain()
}

func (c *ObservableCursor[T]) changedAt(epoch uint64, doc, _ T, at int) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	if at < 0 || at >= len(c.data) {
		c.log.Info("ignoring change: index out of range", "index", at, "size", len(c.data))
		c.mu.Unlock()
		return
	}

	c.data[at] = doc
	c.log.V(8).Info("changed", "index", at)
	c.broadcastLocked()
	c.mu.Unlock()
	c.queue.Drain()
}

func (c *ObservableCursor[T]) removedAt(epoch uint64, _ T, at int) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	if at < 0 || at >= len(c.data) {
		c.log.Info("ignoring removal: index out of range", "index", at, "size", len(c.data))
		c.mu.Unlock()
		return
	}

	c.data = slices.Delete(c.data, at, at+1)
	c.log.V(8).Info("removed", "index", at, "size", len(c.data))
	c.broadcastLocked()
	c.mu.Unlock()
	c.queue.Drain()
}

func (c *ObservableCursor[T]) movedTo(epoch uint64, doc T, from, to int) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	if from < 0 || from >= len(c.data) {
		c.log.Info("ignoring move: index out of range", "from", from, "size", len(c.data))
		c.mu.Unlock()
		return
	}

	c.data = slices.Delete(c.data, from, from+1)
	to = max(0, min(to, len(c.data)))
	c.data = slices.Insert(c.data, to, doc)
	c.log.V(8).Info("moved", "from", from, "to", to)
	c.broadcastLocked()
	c.mu.Unlock()
	c.queue.Drain()
}

// flushInitial broadcasts the coalesced initial result set.
func (c *ObservableCursor[T]) flushInitial(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.initialized {
		c.mu.Unlock()
		return
	}

	if len(c.data) == 0 && c.skipEmpty {
		// the first add re-arms the flush
		c.log.V(4).Info("initial result set empty, skipping broadcast")
		c.mu.Unlock()
		return
	}

	c.log.V(4).Info("initial result set ready", "size", len(c.data))
	c.broadcastLocked()
	c.initialized = true
	c.mu.Unlock()
	c.queue.Drain()
}

// broadcastLocked queues the current result set for the count channel and every observer. The
// rest of the broadcast is dropped once the cursor stops, even if an observer stops it.
func (c *ObservableCursor[T]) broadcastLocked() {
	snapshot := c.snapshotLocked()
	observers := slices.Clone(c.observers)
	count, epoch := c.count, c.epoch

	c.queue.Push(func() {
		if !c.current(epoch) {
			return
		}
		c.zone.Run(func() any {
			count.Next(len(snapshot))
			for _, o := range observers {
				if !c.current(epoch) {
					break
				}
				o.Next(snapshot)
			}
			return nil
		})
	})
}

// current returns true if the cursor has not been stopped since epoch.
func (c *ObservableCursor[T]) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

func (c *ObservableCursor[T]) snapshotLocked() []T {
	ret := make([]T, len(c.data))
	copy(ret, c.data)
	return ret
}

// AsObservable returns the cursor as an observable.Observable, which can also be consumed as a
// goreactive stream: Observe on the result subscribes like Subscribe and unsubscribes when the
// context is cancelled. The cursor itself cannot be a stream since its Observe method starts a
// separate live query on the store cursor.
func (c *ObservableCursor[T]) AsObservable() observable.Observable[[]T] {
	return observable.New(func(s *observable.Subscriber[[]T]) func() {
		return c.Subscribe(s).Unsubscribe
	})
}

// CollectionCount returns a stream of the size of the result set. It emits on every broadcast and
// completes when the cursor stops.
func (c *ObservableCursor[T]) CollectionCount() observable.Observable[int] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count.AsObservable()
}

// Stop completes the count channel and all observers, stops the live query and clears the result
// set. Observers stay registered and the cursor can be subscribed to again. When called from an
// observer, the pending broadcast is dropped and the completions follow the current delivery.
func (c *ObservableCursor[T]) Stop() {
	c.log.V(2).Info("stopping")
	c.terminate(nil)
}

// fail delivers an upstream error to every observer and resets the cursor.
func (c *ObservableCursor[T]) fail(epoch uint64, err error) {
	c.mu.Lock()
	stale := c.epoch != epoch
	c.mu.Unlock()
	if stale {
		return
	}

	c.log.Error(err, "live query failed")
	c.terminate(&UpstreamError{Err: err})
}

func (c *ObservableCursor[T]) terminate(err error) {
	c.mu.Lock()
	count := c.count
	c.count = observable.NewSubject[int]()
	observers := slices.Clone(c.observers)
	handle := c.handle
	c.handle = nil
	c.starting = false
	c.epoch++
	c.data = []T{}
	c.initialized = false

	// the live query is stopped only after every observer has been notified
	c.queue.Push(func() {
		c.zone.Run(func() any {
			if err != nil {
				count.Error(err)
				for _, o := range observers {
					o.Error(err)
				}
				return nil
			}
			count.Complete()
			for _, o := range observers {
				o.Complete()
			}
			return nil
		})

		if handle != nil {
			c.log.V(4).Info("stopping live query")
			handle.Stop()
		}
	})
	c.mu.Unlock()

	c.initial.Cancel()
	c.queue.Drain()
}

// Dispose releases the observers, the store cursor and the zone runners. It must be called only
// when no subscription is active.
func (c *ObservableCursor[T]) Dispose() {
	c.mu.Lock()
	c.observers = nil
	c.cursor = nil
	c.disposed = true
	c.mu.Unlock()

	c.initial.Cancel()
	c.runners.Dispose()
	c.log.V(2).Info("disposed")
}

// Fetch returns all matching documents from the store cursor.
func (c *ObservableCursor[T]) Fetch() ([]T, error) {
	cursor := c.Cursor()
	if cursor == nil {
		return nil, ErrDisposed
	}
	return cursor.Fetch()
}

// Observe starts a separate live query on the store cursor.
func (c *ObservableCursor[T]) Observe(callbacks ObserveCallbacks[T]) (Handle, error) {
	cursor := c.Cursor()
	if cursor == nil {
		return nil, ErrDisposed
	}
	return cursor.Observe(callbacks)
}

// ObserveChanges starts a separate unordered live query on the store cursor.
func (c *ObservableCursor[T]) ObserveChanges(callbacks ChangeCallbacks) (Handle, error) {
	cursor := c.Cursor()
	if cursor == nil {
		return nil, ErrDisposed
	}
	return cursor.ObserveChanges(callbacks)
}

// rebind redirects the observables of zoned documents through the zone of the cursor.
func (c *ObservableCursor[T]) rebind(doc T) T {
	z, ok := any(doc).(Zoned[T])
	if !ok {
		return doc
	}
	if v := reflect.ValueOf(doc); v.Kind() == reflect.Pointer && v.IsNil() {
		return doc
	}
	return z.WithZone(zone.NewRedirector(c.zone, c.runners))
}
