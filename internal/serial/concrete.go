package serial

import (
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	marshalerType   = reflect.TypeFor[json.Marshaler]()
	unmarshalerType = reflect.TypeFor[json.Unmarshaler]()
)

// checkConcrete returns an error when the type of v, after pointer
// indirection, reaches an interface anywhere in its structure.
func checkConcrete(v any) error {
	if v == nil {
		return fmt.Errorf("nil value")
	}
	return walkType(reflect.TypeOf(v), "", map[reflect.Type]bool{})
}

func walkType(t reflect.Type, path string, seen map[reflect.Type]bool) error {
	if seen[t] {
		return nil
	}
	seen[t] = true
	if t.Implements(marshalerType) || t.Implements(unmarshalerType) ||
		reflect.PointerTo(t).Implements(unmarshalerType) {
		return nil
	}
	switch t.Kind() {
	case reflect.Interface:
		if path == "" {
			path = "value"
		}
		return fmt.Errorf("%s has interface type %s", path, t)
	case reflect.Pointer:
		return walkType(t.Elem(), path, seen)
	case reflect.Slice, reflect.Array:
		return walkType(t.Elem(), path+"[]", seen)
	case reflect.Map:
		if err := walkType(t.Key(), path+"{key}", seen); err != nil {
			return err
		}
		return walkType(t.Elem(), path+"{}", seen)
	case reflect.Struct:
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("json") == "-" {
				continue
			}
			p := f.Name
			if path != "" {
				p = path + "." + f.Name
			}
			if err := walkType(f.Type, p, seen); err != nil {
				return err
			}
		}
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return fmt.Errorf("%s has unsupported type %s", path, t)
	}
	return nil
}
