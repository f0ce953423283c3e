package observable

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/joamaki/goreactive/stream"
)

// Observe subscribes to src and calls next for each value until src completes, src fails, next
// returns an error or ctx is cancelled. It blocks until then and unsubscribes before returning.
// The return value is nil on completion, the error of src or next, or ctx.Err().
//
// Observe is the bridge to goreactive: any Source consumed through it behaves as a
// stream.Observable.
func Observe[T any](ctx context.Context, src Source[T], next func(T) error) error {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once    sync.Once
		result  error
		stopped atomic.Bool
	)
	finish := func(err error) {
		stopped.Store(true)
		once.Do(func() {
			result = err
			cancel()
		})
	}

	sub := src.Subscribe(ObserverFuncs[T]{
		NextFunc: func(v T) {
			if stopped.Load() {
				return
			}
			if err := next(v); err != nil {
				finish(err)
			}
		},
		ErrorFunc:    finish,
		CompleteFunc: func() { finish(nil) },
	})

	<-ctx.Done()
	sub.Unsubscribe()

	once.Do(func() { result = parent.Err() })
	return result
}

type streamObservable[T any] struct {
	src stream.Observable[T]
}

// FromStream turns a goreactive stream into an Observable. Each subscription observes src on its
// own goroutine, so values are delivered asynchronously. Unsubscribing cancels the observation.
func FromStream[T any](src stream.Observable[T]) Observable[T] {
	return &streamObservable[T]{src: src}
}

func (o *streamObservable[T]) Subscribe(observer Observer[T]) Subscription {
	s := NewSubscriber(observer)
	ctx, cancel := context.WithCancel(context.Background())
	s.Add(cancel)

	go func() {
		err := o.src.Observe(ctx, func(v T) error {
			if s.Closed() {
				return context.Canceled
			}
			s.Next(v)
			return nil
		})
		switch {
		case ctx.Err() != nil:
		case err != nil:
			s.Error(err)
		default:
			s.Complete()
		}
	}()

	return s
}

// Observe passes through to the wrapped stream.
func (o *streamObservable[T]) Observe(ctx context.Context, next func(T) error) error {
	return o.src.Observe(ctx, next)
}
