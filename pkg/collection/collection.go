// Package collection implements an in-memory document collection with live queries.
package collection

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/l7mp/livecursor/pkg/cursor"
	"github.com/l7mp/livecursor/pkg/object"
	"github.com/l7mp/livecursor/pkg/observable"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrExists          = errors.New("document already exists")
	ErrInvalidDocument = errors.New("invalid document")
)

// Options configure a collection.
type Options struct {
	Logger logr.Logger
}

// Collection is a set of documents keyed by namespace/name. Live queries opened with Find are
// notified of every change that affects their result set.
type Collection struct {
	name    string
	store   *Store
	queries []*query
	queue   observable.Serial
	mu      sync.Mutex
	log     logr.Logger
}

// New creates an empty collection.
func New(name string, opts Options) *Collection {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	return &Collection{
		name:    name,
		store:   NewStore(),
		queries: []*query{},
		log:     logger.WithName("collection").WithValues("name", name),
	}
}

// Name returns the name of the collection.
func (c *Collection) Name() string { return c.name }

// Len returns the number of documents in the collection.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Insert adds a new document. Documents without a kind are stamped with the GVK of the collection
// and documents without a UID get a stable UID.
func (c *Collection) Insert(doc object.Document) error {
	doc, err := c.normalize(doc)
	if err != nil {
		return err
	}

	c.mu.Lock()
	key := object.Key(doc)
	if _, exists, _ := c.store.GetByKey(key); exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExists, key)
	}
	if err := c.store.Add(doc); err != nil {
		c.mu.Unlock()
		return err
	}
	c.log.V(8).Info("insert", "document", object.Dump(doc))
	c.notifyLocked(nil, doc)
	c.mu.Unlock()

	c.queue.Drain()
	return nil
}

// Update replaces an existing document.
func (c *Collection) Update(doc object.Document) error {
	doc, err := c.normalize(doc)
	if err != nil {
		return err
	}

	c.mu.Lock()
	key := object.Key(doc)
	old, exists, _ := c.store.GetByKey(key)
	if !exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := c.store.Update(doc); err != nil {
		c.mu.Unlock()
		return err
	}
	c.log.V(8).Info("update", "document", object.Dump(doc))
	c.notifyLocked(old, doc)
	c.mu.Unlock()

	c.queue.Drain()
	return nil
}

// Upsert inserts a document or replaces it if it already exists.
func (c *Collection) Upsert(doc object.Document) error {
	err := c.Insert(doc)
	if errors.Is(err, ErrExists) {
		return c.Update(doc)
	}
	return err
}

// Patch merges a patch into a document, see object.Patch.
func (c *Collection) Patch(namespace, name string, patch map[string]any) error {
	key := toKey(namespace, name)

	c.mu.Lock()
	old, exists, _ := c.store.GetByKey(key)
	if !exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	doc := object.DeepCopy(old)
	object.Patch(doc, patch)
	if err := c.store.Update(doc); err != nil {
		c.mu.Unlock()
		return err
	}
	c.log.V(8).Info("patch", "key", key, "patch", patch)
	c.notifyLocked(old, doc)
	c.mu.Unlock()

	c.queue.Drain()
	return nil
}

// Remove deletes a document.
func (c *Collection) Remove(namespace, name string) error {
	key := toKey(namespace, name)

	c.mu.Lock()
	old, exists, _ := c.store.GetByKey(key)
	if !exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := c.store.Delete(old); err != nil {
		c.mu.Unlock()
		return err
	}
	c.log.V(8).Info("remove", "key", key)
	c.notifyLocked(old, nil)
	c.mu.Unlock()

	c.queue.Drain()
	return nil
}

// Get returns a copy of a document.
func (c *Collection) Get(namespace, name string) (object.Document, error) {
	key := toKey(namespace, name)

	c.mu.Lock()
	defer c.mu.Unlock()
	doc, exists, err := c.store.GetByKey(key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return doc, nil
}

// List returns copies of all documents ordered by key.
func (c *Collection) List() []object.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.List()
}

// Fail reports an error to every live query of the collection and terminates them. The documents
// are kept and new live queries can be started.
func (c *Collection) Fail(err error) {
	c.mu.Lock()
	queries := c.queries
	c.queries = []*query{}
	c.log.Error(err, "failing live queries", "queries", len(queries))
	for _, q := range queries {
		c.queue.Push(func() {
			if q.stopped.Swap(true) {
				return
			}
			q.fail(err)
		})
	}
	c.mu.Unlock()

	c.queue.Drain()
}

// Find returns a cursor over the documents matching the filter, in the order given by the less
// function.
func (c *Collection) Find(opts FindOptions) *Cursor {
	return &Cursor{collection: c, opts: opts.complete()}
}

// Queries returns the number of running live queries.
func (c *Collection) Queries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

func (c *Collection) normalize(doc object.Document) (object.Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	if doc.GetName() == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidDocument)
	}

	doc = object.DeepCopy(doc)
	if doc.GetKind() == "" {
		doc.SetGroupVersionKind(object.NewGVK(c.name))
	}
	object.WithUID(doc)
	return doc, nil
}

// register adds a live query and queues the initial result set.
func (c *Collection) register(q *query) {
	c.mu.Lock()
	for _, doc := range c.store.List() {
		if q.opts.Filter(doc) {
			q.results = append(q.results, doc)
		}
	}
	slices.SortFunc(q.results, q.opts.compare)
	c.queries = append(c.queries, q)

	c.log.V(4).Info("live query started", "results", len(q.results))
	for i, doc := range q.results {
		c.push(q, q.added(doc, i))
	}
	c.mu.Unlock()

	c.queue.Drain()
}

func (c *Collection) unregister(q *query) {
	if q.stopped.Swap(true) {
		return
	}

	c.mu.Lock()
	c.queries = slices.DeleteFunc(c.queries, func(o *query) bool { return o == q })
	c.mu.Unlock()

	c.log.V(4).Info("live query stopped")
}

// notifyLocked updates the result set of every live query after a document changed from old to
// doc. A nil old means an insert, a nil doc a removal.
func (c *Collection) notifyLocked(old, doc object.Document) {
	for _, q := range c.queries {
		for _, fn := range q.apply(old, doc) {
			c.push(q, fn)
		}
	}
}

// push queues a callback that is skipped once the query stops.
func (c *Collection) push(q *query, fn func()) {
	c.queue.Push(func() {
		if q.stopped.Load() {
			return
		}
		fn()
	})
}

func toKey(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "/" + name
}

// query is the state of a live query.
type query struct {
	opts    FindOptions
	results []object.Document
	ordered *cursor.ObserveCallbacks[object.Document]
	changes *cursor.ChangeCallbacks
	stopped atomic.Bool
}

func (q *query) index(doc object.Document) int {
	key := object.Key(doc)
	return slices.IndexFunc(q.results, func(d object.Document) bool { return object.Key(d) == key })
}

// position returns the index doc is to be inserted at.
func (q *query) position(doc object.Document) int {
	i, _ := slices.BinarySearchFunc(q.results, doc, q.opts.compare)
	return i
}

// apply updates the result set and returns the callbacks describing the update.
func (q *query) apply(old, doc object.Document) []func() {
	from := -1
	if old != nil {
		from = q.index(old)
	}
	matches := doc != nil && q.opts.Filter(doc)

	switch {
	case from < 0 && !matches:
		return nil

	case from < 0:
		at := q.position(doc)
		q.results = slices.Insert(q.results, at, doc)
		return []func(){q.added(doc, at)}

	case !matches:
		prev := q.results[from]
		q.results = slices.Delete(q.results, from, from+1)
		return []func(){q.removed(prev, from)}

	default:
		prev := q.results[from]
		if object.DeepEqual(prev, doc) {
			return nil
		}
		q.results = slices.Delete(q.results, from, from+1)
		to := q.position(doc)
		q.results = slices.Insert(q.results, to, doc)

		ret := []func(){q.changed(doc, prev, from)}
		if to != from {
			ret = append(ret, q.moved(doc, from, to))
		}
		return ret
	}
}

func (q *query) before(at int) string {
	if at+1 < len(q.results) {
		return object.Key(q.results[at+1])
	}
	return ""
}

func (q *query) added(doc object.Document, at int) func() {
	doc, before := object.DeepCopy(doc), q.before(at)
	return func() {
		switch {
		case q.ordered != nil && q.ordered.AddedAt != nil:
			q.ordered.AddedAt(doc, at, before)
		case q.changes != nil && q.changes.Added != nil:
			q.changes.Added(object.Key(doc), object.Fields(doc))
		}
	}
}

func (q *query) changed(doc, prev object.Document, at int) func() {
	doc, prev = object.DeepCopy(doc), object.DeepCopy(prev)
	return func() {
		switch {
		case q.ordered != nil && q.ordered.ChangedAt != nil:
			q.ordered.ChangedAt(doc, prev, at)
		case q.changes != nil && q.changes.Changed != nil:
			q.changes.Changed(object.Key(doc), object.DiffFields(prev, doc))
		}
	}
}

func (q *query) removed(prev object.Document, at int) func() {
	prev = object.DeepCopy(prev)
	return func() {
		switch {
		case q.ordered != nil && q.ordered.RemovedAt != nil:
			q.ordered.RemovedAt(prev, at)
		case q.changes != nil && q.changes.Removed != nil:
			q.changes.Removed(object.Key(prev))
		}
	}
}

func (q *query) moved(doc object.Document, from, to int) func() {
	doc = object.DeepCopy(doc)
	return func() {
		if q.ordered != nil && q.ordered.MovedTo != nil {
			q.ordered.MovedTo(doc, from, to)
		}
	}
}

func (q *query) fail(err error) {
	switch {
	case q.ordered != nil && q.ordered.Error != nil:
		q.ordered.Error(err)
	case q.changes != nil && q.changes.Error != nil:
		q.changes.Error(err)
	}
}
