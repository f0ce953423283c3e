// Package cursor bridges live-query cursors of a reactive document store to observables.
package cursor

import (
	"errors"
	"fmt"

	"github.com/l7mp/livecursor/pkg/zone"
)

// Handle is returned by a live query. Stop ends the live query.
type Handle interface {
	Stop()
}

// HandleFunc adapts a function to a Handle.
type HandleFunc func()

func (f HandleFunc) Stop() { f() }

// ObserveCallbacks are called by an ordered live query as its result set changes. Unset callbacks
// are not called.
type ObserveCallbacks[T any] struct {
	// AddedAt is called when doc enters the result set at index atIndex, before the document with
	// the id before (empty if doc is last).
	AddedAt func(doc T, atIndex int, before string)
	// ChangedAt is called when the document at atIndex changes from oldDoc to doc.
	ChangedAt func(doc, oldDoc T, atIndex int)
	// RemovedAt is called when the document at atIndex leaves the result set.
	RemovedAt func(doc T, atIndex int)
	// MovedTo is called when doc moves from fromIndex to toIndex.
	MovedTo func(doc T, fromIndex, toIndex int)
	// Error is called when the live query fails. No further callbacks follow.
	Error func(err error)
}

// ChangeCallbacks are called by an unordered live query with the changed fields only.
type ChangeCallbacks struct {
	Added   func(id string, fields map[string]any)
	Changed func(id string, fields map[string]any)
	Removed func(id string)
	Error   func(err error)
}

// Cursor is the live-query cursor of a document store.
type Cursor[T any] interface {
	// Fetch returns all matching documents.
	Fetch() ([]T, error)
	// Observe starts an ordered live query. Implementations typically deliver the current result
	// set as a burst of AddedAt callbacks before returning.
	Observe(callbacks ObserveCallbacks[T]) (Handle, error)
	// ObserveChanges starts an unordered live query reporting field-level changes.
	ObserveChanges(callbacks ChangeCallbacks) (Handle, error)
}

// Zoned is implemented by documents holding observables of their own. When such a document
// enters the result set of an ObservableCursor, WithZone is called so that the document can
// redirect its observables through the zone of the cursor, typically with zone.Redirect.
type Zoned[T any] interface {
	WithZone(r zone.Redirector) T
}

// ErrDisposed is returned by the operations of a disposed ObservableCursor.
var ErrDisposed = errors.New("observable cursor is disposed")

// UpstreamError is delivered to observers when the underlying live query fails.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("live query failed: %s", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
