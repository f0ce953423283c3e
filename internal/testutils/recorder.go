package testutils

import (
	"slices"
	"sync"
)

// Recorder is an observer that records every notification it receives. It does not import the
// observable package so that the observable tests can use it.
type Recorder[T any] struct {
	values    []T
	errs      []error
	completes int
	mu        sync.Mutex
}

func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{values: []T{}}
}

func (r *Recorder[T]) Next(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *Recorder[T]) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *Recorder[T]) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes++
}

// Values returns a copy of the values received so far.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.values)
}

// Len returns the number of values received so far.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Last returns the last value received, or the zero value.
func (r *Recorder[T]) Last() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if len(r.values) == 0 {
		return zero
	}
	return r.values[len(r.values)-1]
}

// Errors returns the errors received so far.
func (r *Recorder[T]) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.errs)
}

// Completions returns the number of completions received.
func (r *Recorder[T]) Completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completes
}
