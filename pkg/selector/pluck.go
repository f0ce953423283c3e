package selector

import (
	"github.com/joamaki/goreactive/stream"
)

// Pluck is the typed variant of Select for single values: every value is replaced by get(value).
// Any observable.Observable can be passed as src, and observable.FromStream turns the result back
// into one.
func Pluck[T, U any](src stream.Observable[T], get func(T) U) stream.Observable[U] {
	return stream.Map(src, get)
}

// PluckEach is the typed variant of Select for slices: every element is replaced by get(element).
func PluckEach[T, U any](src stream.Observable[[]T], get func(T) U) stream.Observable[[]U] {
	return stream.Map(src, func(docs []T) []U {
		ret := make([]U, len(docs))
		for i, doc := range docs {
			ret[i] = get(doc)
		}
		return ret
	})
}

// FlatPluck is the typed variant of Select for slice-valued fields: the fields of all elements are
// concatenated into a single slice.
func FlatPluck[T, U any](src stream.Observable[[]T], get func(T) []U) stream.Observable[[]U] {
	return stream.Map(src, func(docs []T) []U {
		ret := []U{}
		for _, doc := range docs {
			ret = append(ret, get(doc)...)
		}
		return ret
	})
}
