package object

import (
	"crypto/sha256"
	"fmt"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
)

// NewUID creates a stable UID from GVK+namespace+name.
func NewUID(gvk schema.GroupVersionKind, namespace, name string) types.UID {
	key := fmt.Sprintf("%s/%s/%s/%s/%s", gvk.Group, gvk.Version, gvk.Kind, namespace, name)
	hash := sha256.Sum256([]byte(key))

	return types.UID(fmt.Sprintf("%x-%x-%x-%x-%x",
		hash[0:4], hash[4:6], hash[6:8], hash[8:10], hash[10:16]))
}

// WithUID sets the stable UID of a document unless it already has one.
func WithUID(doc Document) {
	if doc.GetUID() != "" {
		return
	}
	doc.SetUID(NewUID(doc.GroupVersionKind(), doc.GetNamespace(), doc.GetName()))
}
