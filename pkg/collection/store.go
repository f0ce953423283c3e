package collection

import (
	"sort"

	toolscache "k8s.io/client-go/tools/cache"

	"github.com/l7mp/livecursor/pkg/object"
)

// Store is a thread-safe keyed document store. Documents are deep-copied on the way in and on the
// way out so that callers never share state with the store.
type Store struct {
	store toolscache.Store
}

func NewStore() *Store {
	return &Store{store: toolscache.NewStore(toolscache.MetaNamespaceKeyFunc)}
}

// Add adds a document under its namespace/name key.
func (s *Store) Add(doc object.Document) error { return s.store.Add(object.DeepCopy(doc)) }

// Update replaces the document stored under the key of doc.
func (s *Store) Update(doc object.Document) error { return s.store.Update(object.DeepCopy(doc)) }

// Delete removes the document stored under the key of doc.
func (s *Store) Delete(doc object.Document) error { return s.store.Delete(doc) }

// GetByKey returns the document stored under a namespace/name key.
func (s *Store) GetByKey(key string) (object.Document, bool, error) {
	item, exists, err := s.store.GetByKey(key)
	if err != nil || item == nil {
		return nil, exists, err
	}
	return object.DeepCopy(item.(object.Document)), exists, nil
}

// List returns all documents ordered by key.
func (s *Store) List() []object.Document {
	keys := s.store.ListKeys()
	sort.Strings(keys)

	ret := make([]object.Document, 0, len(keys))
	for _, key := range keys {
		if item, exists, err := s.store.GetByKey(key); err == nil && exists {
			ret = append(ret, object.DeepCopy(item.(object.Document)))
		}
	}
	return ret
}

// Len returns the number of stored documents.
func (s *Store) Len() int { return len(s.store.ListKeys()) }
