package object

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/json"
	toolscache "k8s.io/client-go/tools/cache"
	"sigs.k8s.io/yaml"
)

// Group is the API group of documents stored in live collections.
const (
	Group   = "livecursor.l7mp.io"
	Version = "v1alpha1"
)

// Document is a schemaless document.
type Document = *unstructured.Unstructured

// NewGVK returns the GVK of documents of a collection.
func NewGVK(collection string) schema.GroupVersionKind {
	return schema.GroupVersionKind{Group: Group, Version: Version, Kind: collection}
}

// New creates an empty document for a collection.
func New(collection, ns, name string) Document {
	doc := &unstructured.Unstructured{}
	doc.SetUnstructuredContent(map[string]any{})
	doc.SetGroupVersionKind(NewGVK(collection))
	SetName(doc, ns, name)
	return doc
}

// NewWithContent creates a document and sets its content.
func NewWithContent(collection, ns, name string, content map[string]any) Document {
	doc := New(collection, ns, name)
	SetContent(doc, content)
	return doc
}

// FromYAML parses a document from YAML. Whole numbers are decoded as int64.
func FromYAML(doc string) (Document, error) {
	j, err := yaml.YAMLToJSON([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	content := map[string]any{}
	if err := json.Unmarshal(j, &content); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &unstructured.Unstructured{Object: content}, nil
}

// SetName is a shortcut to SetNamespace(ns) followed by SetName(name).
func SetName(doc Document, ns, name string) {
	doc.SetNamespace(ns)
	doc.SetName(name)
}

// SetContent is similar to SetUnstructuredContent but it preserves the GVK, the name and the
// namespace and deep-copies the content.
func SetContent(doc Document, content map[string]any) {
	gvk := doc.GetObjectKind().GroupVersionKind()
	ns, name := doc.GetNamespace(), doc.GetName()
	doc.SetUnstructuredContent(runtime.DeepCopyJSON(content))
	doc.GetObjectKind().SetGroupVersionKind(gvk)
	SetName(doc, ns, name)
}

// Key returns the namespace/name key of a document.
func Key(doc Document) string {
	key, err := toolscache.MetaNamespaceKeyFunc(doc)
	if err != nil {
		return ""
	}
	return key
}

func DeepEqual(a, b Document) bool {
	return equality.Semantic.DeepEqual(a, b)
}

func DeepCopyInto(in, out Document) {
	if in == nil || out == nil {
		return
	}
	out.SetUnstructuredContent(runtime.DeepCopyJSON(in.UnstructuredContent()))
	out.GetObjectKind().SetGroupVersionKind(in.GetObjectKind().GroupVersionKind())
}

func DeepCopy(in Document) Document {
	if in == nil {
		return nil
	}

	out := new(unstructured.Unstructured)
	DeepCopyInto(in, out)
	return out
}
