// Package selector implements the field selection operators: each emitted document, or slice of
// documents, is replaced by the value of a field.
package selector

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ohler55/ojg/jp"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/l7mp/livecursor/pkg/observable"
)

// NewPathError is returned when the field of Select is not a valid JSONPath expression.
func NewPathError(field string, err error) error {
	return fmt.Errorf("invalid JSONPath expression %q: %w", field, err)
}

// Select projects field from each emitted value.
//
// If the value is a slice or an array, field is projected from every element. If the projection
// of the first element is itself a slice, the projections are concatenated (flattened one level),
// otherwise the result is the slice of the projections. Any other value is projected directly,
// and nil yields nil.
//
// Fields beginning with "$" are JSONPath expressions. Other fields name a map key, an exported
// struct field or a json struct tag.
func Select[T any](src observable.Source[T], field string) observable.Observable[any] {
	var expr jp.Expr
	if strings.HasPrefix(field, "$") {
		x, err := jp.ParseString(field)
		if err != nil {
			return observable.Throw[any](NewPathError(field, err))
		}
		expr = x
	} else {
		expr = jp.C(field)
	}

	p := &projector{field: field, expr: expr}
	return observable.Lift(src, func(dst observable.Observer[any]) observable.Observer[T] {
		return observable.ObserverFuncs[T]{
			NextFunc:     func(v T) { dst.Next(p.apply(v)) },
			ErrorFunc:    dst.Error,
			CompleteFunc: dst.Complete,
		}
	})
}

type projector struct {
	field string
	expr  jp.Expr
}

func (p *projector) apply(value any) any {
	if list, ok := value.(*unstructured.UnstructuredList); ok {
		if list == nil {
			return nil
		}
		items := make([]any, len(list.Items))
		for i := range list.Items {
			items[i] = &list.Items[i]
		}
		value = items
	}

	v := reflect.ValueOf(value)
	if !v.IsValid() {
		return nil
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return p.project(value)
	}
	if v.Kind() == reflect.Slice && v.IsNil() {
		return nil
	}

	n := v.Len()
	ret := make([]any, 0, n)
	if n == 0 {
		return ret
	}

	if isList(p.project(v.Index(0).Interface())) {
		for i := 0; i < n; i++ {
			field := p.project(v.Index(i).Interface())
			if fv := reflect.ValueOf(field); isList(field) {
				for j := 0; j < fv.Len(); j++ {
					ret = append(ret, fv.Index(j).Interface())
				}
			} else {
				ret = append(ret, field)
			}
		}
		return ret
	}

	for i := 0; i < n; i++ {
		ret = append(ret, p.project(v.Index(i).Interface()))
	}
	return ret
}

// project returns the field of a single document, or nil.
func (p *projector) project(doc any) any {
	switch d := doc.(type) {
	case nil:
		return nil
	case *unstructured.Unstructured:
		if d == nil {
			return nil
		}
		return p.expr.First(d.Object)
	case map[string]any:
		return p.expr.First(d)
	}

	v := reflect.ValueOf(doc)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil
		}
		mv := v.MapIndex(reflect.ValueOf(p.field).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return nil
		}
		return mv.Interface()
	case reflect.Struct:
		return structField(v, p.field)
	}

	return nil
}

func structField(v reflect.Value, field string) any {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if f.Name == field || name == field {
			return v.Field(i).Interface()
		}
	}
	return nil
}

func isList(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return false
	}
	return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
}
