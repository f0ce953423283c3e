package testutils

import (
	"time"

	"k8s.io/apimachinery/pkg/watch"
)

// TryWatch attempts to receive a watch.Event from a watch.Interface within the specified timeout.
// Returns the event and true if successful, or an empty event and false if timeout occurs.
func TryWatch(watcher watch.Interface, timeout time.Duration) (watch.Event, bool) {
	select {
	case event, ok := <-watcher.ResultChan():
		return event, ok
	case <-time.After(timeout):
		return watch.Event{}, false
	}
}
