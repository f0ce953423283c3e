package collection

import (
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/api/equality"

	"github.com/l7mp/livecursor/pkg/cursor"
	"github.com/l7mp/livecursor/pkg/object"
)

// FindOptions select and order the documents of a cursor.
type FindOptions struct {
	// Filter selects the documents of the result set. Defaults to all documents.
	Filter func(doc object.Document) bool
	// Less orders the result set. Documents that are not ordered by Less are ordered by key.
	// Defaults to ordering by key.
	Less func(a, b object.Document) bool
}

func (o FindOptions) complete() FindOptions {
	if o.Filter == nil {
		o.Filter = func(object.Document) bool { return true }
	}
	if o.Less == nil {
		o.Less = func(object.Document, object.Document) bool { return false }
	}
	return o
}

func (o FindOptions) compare(a, b object.Document) int {
	switch {
	case o.Less(a, b):
		return -1
	case o.Less(b, a):
		return 1
	default:
		return strings.Compare(object.Key(a), object.Key(b))
	}
}

// FieldEquals returns a filter matching documents whose top-level field equals value.
func FieldEquals(field string, value any) func(object.Document) bool {
	return func(doc object.Document) bool {
		v, ok := doc.UnstructuredContent()[field]
		return ok && equality.Semantic.DeepEqual(v, value)
	}
}

// ByField returns a less function ordering documents by an integer or string top-level field.
// Documents missing the field come first.
func ByField(field string) func(a, b object.Document) bool {
	return func(a, b object.Document) bool {
		va, vb := a.UnstructuredContent()[field], b.UnstructuredContent()[field]
		switch x := va.(type) {
		case int64:
			y, ok := vb.(int64)
			return ok && x < y
		case float64:
			y, ok := vb.(float64)
			return ok && x < y
		case string:
			y, ok := vb.(string)
			return ok && x < y
		case nil:
			return vb != nil
		}
		return false
	}
}

// Cursor is a query over a collection.
type Cursor struct {
	collection *Collection
	opts       FindOptions
}

var _ cursor.Cursor[object.Document] = &Cursor{}

// Fetch returns copies of the matching documents in order.
func (c *Cursor) Fetch() ([]object.Document, error) {
	ret := slices.DeleteFunc(c.collection.List(), func(doc object.Document) bool {
		return !c.opts.Filter(doc)
	})
	slices.SortFunc(ret, c.opts.compare)
	return ret, nil
}

// Observe starts an ordered live query. The current result set is delivered as a burst of AddedAt
// callbacks before Observe returns, unless Observe is called from within another callback of the
// collection, in which case the burst follows the running callback.
func (c *Cursor) Observe(callbacks cursor.ObserveCallbacks[object.Document]) (cursor.Handle, error) {
	q := &query{opts: c.opts, ordered: &callbacks, results: []object.Document{}}
	c.collection.register(q)
	return cursor.HandleFunc(func() { c.collection.unregister(q) }), nil
}

// ObserveChanges starts an unordered live query that reports the fields of added documents and the
// changed fields of updated documents.
func (c *Cursor) ObserveChanges(callbacks cursor.ChangeCallbacks) (cursor.Handle, error) {
	q := &query{opts: c.opts, changes: &callbacks, results: []object.Document{}}
	c.collection.register(q)
	return cursor.HandleFunc(func() { c.collection.unregister(q) }), nil
}
