package object

import (
	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/runtime"
)

// Patch merges a patch into the content of a document in place. Maps are merged recursively, a nil
// value removes the field and any other value replaces the field. The GVK, the namespace and the
// name of the document are never changed.
func Patch(doc Document, patch map[string]any) {
	gvk := doc.GroupVersionKind()
	ns, name := doc.GetNamespace(), doc.GetName()

	doc.SetUnstructuredContent(mergeMap(doc.UnstructuredContent(), patch))

	doc.SetGroupVersionKind(gvk)
	SetName(doc, ns, name)
}

func mergeMap(orig, patch map[string]any) map[string]any {
	ret := runtime.DeepCopyJSON(orig)
	if ret == nil {
		ret = map[string]any{}
	}

	for k, v := range patch {
		if v == nil {
			delete(ret, k)
			continue
		}

		pm, ok := v.(map[string]any)
		if !ok {
			ret[k] = runtime.DeepCopyJSONValue(v)
			continue
		}

		om, ok := ret[k].(map[string]any)
		if !ok || equality.Semantic.DeepEqual(om, pm) {
			ret[k] = runtime.DeepCopyJSONValue(pm)
			continue
		}
		ret[k] = mergeMap(om, pm)
	}

	return ret
}
