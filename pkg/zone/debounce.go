package zone

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// DefaultNudgeDelay is the debounce delay of the parent zone nudges.
const DefaultNudgeDelay = 30 * time.Millisecond

// Debouncer runs the function passed to the last Trigger call once no further Trigger call has
// arrived for the debounce delay.
type Debouncer struct {
	clock clock.WithDelayedExecution
	delay time.Duration
	gen   atomic.Uint64
	timer clock.Timer
	mu    sync.Mutex
}

// NewDebouncer creates a debouncer. A nil clock means the real clock.
func NewDebouncer(c clock.WithDelayedExecution, delay time.Duration) *Debouncer {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Debouncer{clock: c, delay: delay}
}

// Trigger (re)arms the debounce timer with fn.
func (d *Debouncer) Trigger(fn func()) {
	gen := d.gen.Add(1)
	// fake clocks may fire timers with their own lock held, so fn must not run on the clock's
	// call stack
	timer := d.clock.AfterFunc(d.delay, func() {
		go func() {
			if d.gen.Load() == gen {
				fn()
			}
		}()
	})

	d.mu.Lock()
	prev := d.timer
	d.timer = timer
	d.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.gen.Add(1)

	d.mu.Lock()
	timer := d.timer
	d.timer = nil
	d.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
}

// Runners maintains one debouncer per zone identity to nudge zones after redirected deliveries.
// Debouncers are created lazily on first use and released on Dispose.
//
// Zones are keyed by interface equality, so zone implementations should be pointers or otherwise
// comparable values. Zones of a non-comparable type are nudged immediately, without debouncing.
type Runners struct {
	clock    clock.WithDelayedExecution
	delay    time.Duration
	runners  map[Zone]*Debouncer
	disposed bool
	mu       sync.Mutex
	log      logr.Logger
}

// NewRunners creates a runner registry. A nil clock means the real clock.
func NewRunners(c clock.WithDelayedExecution, delay time.Duration, logger logr.Logger) *Runners {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	if c == nil {
		c = clock.RealClock{}
	}
	return &Runners{
		clock:   c,
		delay:   delay,
		runners: map[Zone]*Debouncer{},
		log:     logger.WithName("zone-runners"),
	}
}

// Nudge schedules a debounced no-op run of z. A nil zone is nudged as Noop.
func (r *Runners) Nudge(z Zone) {
	if z == nil {
		z = Noop
	}

	if !reflect.TypeOf(z).Comparable() {
		r.log.V(4).Info("zone is not comparable, nudging without debounce", "zone", z.Name())
		if !r.Disposed() {
			z.Run(func() any { return nil })
		}
		return
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	d, ok := r.runners[z]
	if !ok {
		r.log.V(4).Info("creating runner", "zone", z.Name())
		d = NewDebouncer(r.clock, r.delay)
		r.runners[z] = d
	}
	r.mu.Unlock()

	d.Trigger(func() {
		r.log.V(8).Info("nudging zone", "zone", z.Name())
		z.Run(func() any { return nil })
	})
}

// Disposed returns true once Dispose has been called.
func (r *Runners) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

// Len returns the number of zones with a runner.
func (r *Runners) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runners)
}

// Dispose cancels all pending nudges and releases the runners. Nudges after Dispose are ignored.
func (r *Runners) Dispose() {
	r.mu.Lock()
	runners := r.runners
	r.runners = map[Zone]*Debouncer{}
	r.disposed = true
	r.mu.Unlock()

	for _, d := range runners {
		d.Cancel()
	}

	r.log.V(4).Info("disposed", "runners", len(runners))
}
