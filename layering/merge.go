// Package layering folds configuration layers given strongest first. A zero
// scalar, nil pointer, nil map or nil slice counts as unset. Structs merge
// field by field and maps merge key by key; everything else is replaced
// whole by the strongest layer that sets it.
package layering

import "reflect"

// MergeLayers returns a deep copy of the weakest layer with each stronger
// layer applied over it in turn. The result never aliases the inputs.
func MergeLayers[T any](layers ...T) T {
	var out T
	dst := reflect.ValueOf(&out).Elem()
	for i := len(layers) - 1; i >= 0; i-- {
		overlay(dst, reflect.ValueOf(&layers[i]).Elem())
	}
	return out
}

// overlay writes the set parts of src into dst, which must be settable.
func overlay(dst, src reflect.Value) {
	switch src.Kind() {
	case reflect.Struct:
		if opaque(src.Type()) {
			if !src.IsZero() {
				dst.Set(src)
			}
			return
		}
		for i := 0; i < src.NumField(); i++ {
			if field := dst.Field(i); field.CanSet() {
				overlay(field, src.Field(i))
			}
		}
	case reflect.Map:
		if src.IsNil() {
			return
		}
		if dst.IsNil() {
			dst.Set(reflect.MakeMapWithSize(src.Type(), src.Len()))
		}
		iter := src.MapRange()
		for iter.Next() {
			dst.SetMapIndex(iter.Key(), clone(iter.Value()))
		}
	case reflect.Pointer:
		if src.IsNil() {
			return
		}
		// A set pointer to a scalar wins even when it points at a zero value.
		if dst.IsNil() || src.Elem().Kind() != reflect.Struct || opaque(src.Elem().Type()) {
			dst.Set(clone(src))
			return
		}
		overlay(dst.Elem(), src.Elem())
	case reflect.Slice, reflect.Interface:
		if !src.IsNil() {
			dst.Set(clone(src))
		}
	default:
		if !src.IsZero() {
			dst.Set(src)
		}
	}
}

// opaque reports structs with unexported fields, such as time.Time, which
// are treated as a single value.
func opaque(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			return true
		}
	}
	return false
}

func clone(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(clone(v.Elem()))
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(clone(v.Index(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), clone(iter.Value()))
		}
		return out
	case reflect.Struct:
		if opaque(v.Type()) {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			out.Field(i).Set(clone(v.Field(i)))
		}
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(clone(v.Elem()))
		return out
	}
	return v
}
