package object

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/json"
)

// Dump converts a document into a human-readable form for logging.
func Dump(doc Document) string {
	if doc == nil {
		return "<nil>"
	}

	// strip useless stuff
	ro := DeepCopy(doc)
	ro.SetManagedFields(nil)

	output := fmt.Sprintf("%#v", ro)
	if b, err := json.Marshal(ro); err == nil {
		output = string(b)
	}

	return output
}

// DiffFields returns the top-level fields that differ between two documents. Fields removed in
// newDoc are reported with a nil value. The metadata is never reported.
func DiffFields(oldDoc, newDoc Document) map[string]any {
	var oldContent, newContent map[string]any
	if oldDoc != nil {
		oldContent = oldDoc.UnstructuredContent()
	}
	if newDoc != nil {
		newContent = newDoc.UnstructuredContent()
	}

	diff := map[string]any{}
	for k, v := range newContent {
		if k == "metadata" {
			continue
		}
		if ov, ok := oldContent[k]; !ok || !equality.Semantic.DeepEqual(ov, v) {
			diff[k] = runtime.DeepCopyJSONValue(v)
		}
	}
	for k := range oldContent {
		if k == "metadata" {
			continue
		}
		if _, ok := newContent[k]; !ok {
			diff[k] = nil
		}
	}

	return diff
}

// Fields returns a deep copy of the content of a document without the metadata.
func Fields(doc Document) map[string]any {
	fields := map[string]any{}
	if doc == nil {
		return fields
	}
	for k, v := range doc.UnstructuredContent() {
		if k == "metadata" {
			continue
		}
		fields[k] = runtime.DeepCopyJSONValue(v)
	}
	return fields
}
