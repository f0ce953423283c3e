// Package observable provides the push-based stream primitives the live cursor is built on.
//
// A Source delivers a sequence of Next notifications to each subscribed Observer,
// optionally followed by exactly one terminal Error or Complete. Subscribing returns a
// Subscription; calling Unsubscribe stops further deliveries and runs the teardown registered by
// the producer. Terminal notifications do not run the teardown: the subscriber remains registered
// with the producer until it is explicitly unsubscribed.
//
// Every Observable is also a stream.Observable from goreactive, so the operators of the stream
// package apply to it and a stream.Observable can be turned back into an Observable with
// FromStream.
package observable

import (
	"context"
	"sync"

	"github.com/joamaki/goreactive/stream"
)

// Observer receives notifications from an Observable.
type Observer[T any] interface {
	Next(value T)
	Error(err error)
	Complete()
}

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	// Unsubscribe stops deliveries and releases the resources held by the subscription. It is
	// safe to call more than once.
	Unsubscribe()
	// Closed returns true if no more notifications will be delivered.
	Closed() bool
}

// Source is anything an Observer can subscribe to.
type Source[T any] interface {
	Subscribe(o Observer[T]) Subscription
}

// Observable is a Source that can also be consumed as a goreactive stream.
type Observable[T any] interface {
	Source[T]
	stream.Observable[T]
}

// ObserverFuncs adapts plain functions to an Observer. Nil functions are ignored.
type ObserverFuncs[T any] struct {
	NextFunc     func(T)
	ErrorFunc    func(error)
	CompleteFunc func()
}

var _ Observer[any] = ObserverFuncs[any]{}

func (o ObserverFuncs[T]) Next(value T) {
	if o.NextFunc != nil {
		o.NextFunc(value)
	}
}

func (o ObserverFuncs[T]) Error(err error) {
	if o.ErrorFunc != nil {
		o.ErrorFunc(err)
	}
}

func (o ObserverFuncs[T]) Complete() {
	if o.CompleteFunc != nil {
		o.CompleteFunc()
	}
}

// Subscriber wraps an Observer and enforces the notification grammar: no deliveries after a
// terminal notification or after Unsubscribe, and at most one terminal notification.
type Subscriber[T any] struct {
	dest     Observer[T]
	stopped  bool
	closed   bool
	teardown []func()
	mu       sync.Mutex
}

var _ Observer[any] = &Subscriber[any]{}
var _ Subscription = &Subscriber[any]{}

// NewSubscriber wraps an observer into a subscriber.
func NewSubscriber[T any](dest Observer[T]) *Subscriber[T] {
	if dest == nil {
		dest = ObserverFuncs[T]{}
	}
	return &Subscriber[T]{dest: dest}
}

// Next delivers a value unless the subscriber has stopped.
func (s *Subscriber[T]) Next(value T) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	if !stopped {
		s.dest.Next(value)
	}
}

// Error delivers a terminal error unless the subscriber has stopped.
func (s *Subscriber[T]) Error(err error) {
	if s.stop() {
		s.dest.Error(err)
	}
}

// Complete delivers a terminal completion unless the subscriber has stopped.
func (s *Subscriber[T]) Complete() {
	if s.stop() {
		s.dest.Complete()
	}
}

func (s *Subscriber[T]) stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.stopped = true
	return true
}

// Add registers a teardown to be run on Unsubscribe. If the subscriber is already unsubscribed the
// teardown runs immediately.
func (s *Subscriber[T]) Add(teardown func()) {
	if teardown == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		teardown()
		return
	}
	s.teardown = append(s.teardown, teardown)
	s.mu.Unlock()
}

// Unsubscribe stops the subscriber and runs the registered teardowns in registration order.
func (s *Subscriber[T]) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopped = true
	teardown := s.teardown
	s.teardown = nil
	s.mu.Unlock()

	for _, fn := range teardown {
		fn()
	}
}

// Closed returns true once the subscriber has received a terminal notification or has been
// unsubscribed.
func (s *Subscriber[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Func is the producer of an observable created with New. It is called once per subscription and
// returns an optional teardown.
type Func[T any] func(s *Subscriber[T]) func()

type funcObservable[T any] struct {
	subscribe Func[T]
}

// New creates an observable from a producer function.
func New[T any](subscribe Func[T]) Observable[T] {
	return &funcObservable[T]{subscribe: subscribe}
}

func (o *funcObservable[T]) Subscribe(observer Observer[T]) Subscription {
	s := NewSubscriber(observer)
	s.Add(o.subscribe(s))
	return s
}

func (o *funcObservable[T]) Observe(ctx context.Context, next func(T) error) error {
	return Observe[T](ctx, o, next)
}

// Lift creates an observable that subscribes to src through the observer returned by op. The
// operator observer forwards (possibly transformed) notifications to dst.
func Lift[T, U any](src Source[T], op func(dst Observer[U]) Observer[T]) Observable[U] {
	return New(func(s *Subscriber[U]) func() {
		return src.Subscribe(op(s)).Unsubscribe
	})
}

// Of emits the given values and completes.
func Of[T any](values ...T) Observable[T] {
	return New(func(s *Subscriber[T]) func() {
		for _, v := range values {
			s.Next(v)
		}
		s.Complete()
		return nil
	})
}

// Throw emits the given error.
func Throw[T any](err error) Observable[T] {
	return New(func(s *Subscriber[T]) func() {
		s.Error(err)
		return nil
	})
}
