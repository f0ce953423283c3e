package collection

import (
	"context"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/l7mp/livecursor/pkg/cursor"
	"github.com/l7mp/livecursor/pkg/object"
)

const eventChannelBuffer = 64

// cursorWatcher turns a live query into a stream of watch events.
type cursorWatcher struct {
	result  chan watch.Event
	cancel  context.CancelFunc
	handle  cursor.Handle
	stopped bool
	sync.Mutex
}

func (w *cursorWatcher) ResultChan() <-chan watch.Event {
	return w.result
}

func (w *cursorWatcher) Stop() {
	w.Lock()
	if w.stopped {
		w.Unlock()
		return
	}
	w.stopped = true
	w.cancel()
	close(w.result)
	handle := w.handle
	w.Unlock()

	if handle != nil {
		handle.Stop()
	}
}

// send delivers an event unless the watcher has stopped. Events are dropped when the channel is
// full.
func (w *cursorWatcher) send(event watch.Event) bool {
	w.Lock()
	defer w.Unlock()
	if w.stopped {
		return true
	}
	select {
	case w.result <- event:
		return true
	default:
		return false
	}
}

// Watch starts a live query and returns its events as a watch.Interface: Added for each document
// of the initial result set and for each document entering it, Modified on changes and Deleted
// when a document leaves the result set. A failure of the collection is reported as an Error event
// with a Status object, after which the watcher stops. Moves are not reported. The watcher stops
// when the context is canceled.
func (c *Cursor) Watch(ctx context.Context) (watch.Interface, error) {
	wctx, cancel := context.WithCancel(ctx)
	w := &cursorWatcher{
		result: make(chan watch.Event, eventChannelBuffer),
		cancel: cancel,
	}
	log := c.collection.log.WithName("watch")

	emit := func(t watch.EventType, doc object.Document) {
		if !w.send(watch.Event{Type: t, Object: doc}) {
			log.V(2).Info("watch channel full, dropping event", "type", t, "key", object.Key(doc))
		}
	}

	handle, err := c.Observe(cursor.ObserveCallbacks[object.Document]{
		AddedAt:   func(doc object.Document, _ int, _ string) { emit(watch.Added, doc) },
		ChangedAt: func(doc, _ object.Document, _ int) { emit(watch.Modified, doc) },
		RemovedAt: func(doc object.Document, _ int) { emit(watch.Deleted, doc) },
		Error: func(err error) {
			w.send(watch.Event{Type: watch.Error, Object: &metav1.Status{
				Status:  metav1.StatusFailure,
				Reason:  metav1.StatusReasonInternalError,
				Message: err.Error(),
			}})
			go w.Stop()
		},
	})
	if err != nil {
		cancel()
		return nil, err
	}

	w.Lock()
	if w.stopped {
		w.Unlock()
		handle.Stop()
		return w, nil
	}
	w.handle = handle
	w.Unlock()

	go func() {
		<-wctx.Done()
		w.Stop()
	}()

	return w, nil
}
