package cursor

import (
	"slices"
	"sync"
)

// fakeCursor is a store cursor driven by the test: Observe replays the initial documents as a
// burst of AddedAt callbacks, further callbacks are invoked through callbacks().
type fakeCursor[T any] struct {
	initial      []T
	observeErr   error
	current      *ObserveCallbacks[T]
	observeCalls int
	changeCalls  int
	stops        int
	onStop       func()
	mu           sync.Mutex
}

var _ Cursor[any] = &fakeCursor[any]{}

func newFakeCursor[T any](initial ...T) *fakeCursor[T] {
	return &fakeCursor[T]{initial: initial}
}

func (f *fakeCursor[T]) Fetch() ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.initial), nil
}

func (f *fakeCursor[T]) Observe(callbacks ObserveCallbacks[T]) (Handle, error) {
	f.mu.Lock()
	f.observeCalls++
	if f.observeErr != nil {
		err := f.observeErr
		f.mu.Unlock()
		return nil, err
	}
	f.current = &callbacks
	initial := slices.Clone(f.initial)
	f.mu.Unlock()

	for i, doc := range initial {
		callbacks.AddedAt(doc, i, "")
	}

	return HandleFunc(func() {
		f.mu.Lock()
		f.stops++
		f.current = nil
		onStop := f.onStop
		f.mu.Unlock()

		if onStop != nil {
			onStop()
		}
	}), nil
}

func (f *fakeCursor[T]) ObserveChanges(_ ChangeCallbacks) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changeCalls++
	return HandleFunc(func() {}), nil
}

func (f *fakeCursor[T]) callbacks() ObserveCallbacks[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return ObserveCallbacks[T]{}
	}
	return *f.current
}

func (f *fakeCursor[T]) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeCursor[T]) observeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.observeCalls
}
