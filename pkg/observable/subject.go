package observable

import (
	"context"
	"slices"
	"sync"
)

// Subject is a hot observable that broadcasts every notification to the observers subscribed at
// the time of the notification. Once completed or errored, a subject delivers the terminal
// notification to late subscribers immediately.
type Subject[T any] struct {
	observers []*Subscriber[T]
	stopped   bool
	err       error
	mu        sync.Mutex
}

var _ Observable[any] = &Subject[any]{}
var _ Observer[any] = &Subject[any]{}

// NewSubject creates a new subject.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{observers: []*Subscriber[T]{}}
}

// Subscribe registers an observer with the subject.
func (s *Subject[T]) Subscribe(o Observer[T]) Subscription {
	sub := NewSubscriber(o)

	s.mu.Lock()
	if s.stopped {
		err := s.err
		s.mu.Unlock()
		if err != nil {
			sub.Error(err)
		} else {
			sub.Complete()
		}
		return sub
	}
	s.observers = append(s.observers, sub)
	s.mu.Unlock()

	sub.Add(func() { s.remove(sub) })

	return sub
}

// Observe consumes the subject as a goreactive stream, see Observe.
func (s *Subject[T]) Observe(ctx context.Context, next func(T) error) error {
	return Observe[T](ctx, s, next)
}

func (s *Subject[T]) remove(sub *Subscriber[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.observers, sub); i >= 0 {
		s.observers = slices.Delete(s.observers, i, i+1)
	}
}

// Next broadcasts a value.
func (s *Subject[T]) Next(value T) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.Next(value)
	}
}

// Error broadcasts a terminal error.
func (s *Subject[T]) Error(err error) {
	if observers, ok := s.terminate(err); ok {
		for _, o := range observers {
			o.Error(err)
		}
	}
}

// Complete broadcasts a terminal completion.
func (s *Subject[T]) Complete() {
	if observers, ok := s.terminate(nil); ok {
		for _, o := range observers {
			o.Complete()
		}
	}
}

func (s *Subject[T]) terminate(err error) ([]*Subscriber[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, false
	}
	s.stopped = true
	s.err = err
	observers := s.observers
	s.observers = []*Subscriber[T]{}
	return observers, true
}

// Closed returns true if the subject has completed or errored.
func (s *Subject[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Len returns the number of active observers.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// AsObservable returns a read-only view of the subject.
func (s *Subject[T]) AsObservable() Observable[T] {
	return New(func(sub *Subscriber[T]) func() {
		return s.Subscribe(sub).Unsubscribe
	})
}
