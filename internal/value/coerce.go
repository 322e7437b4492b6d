package value

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/maruel/filekv/internal/errs"
)

// Coercion rules:
//
//	target  | bool        | int              | float         | string
//	--------+-------------+------------------+---------------+-------------
//	bool    | as is       | 0 or 1           | 0 or 1        | "true"/"false"
//	int     | != 0        | as is            | whole only    | decimal
//	float   | != 0        | widened          | as is         | shortest repr
//	string  | ParseBool   | ParseInt, whole  | ParseFloat    | as is
//
// null, lists and maps never coerce to a scalar.

// AsBool converts v to a bool.
func (v Value) AsBool() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindInt:
		return v.i != 0, nil
	case KindFloat:
		return v.f != 0, nil
	case KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(v.s))
		if err != nil {
			return false, errs.Coercion(v, "bool")
		}
		return b, nil
	}
	return false, errs.Coercion(v, "bool")
}

// AsInt converts v to an int64. Fractional numbers are rejected.
func (v Value) AsInt() (int64, error) {
	switch v.kind {
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindInt:
		return v.i, nil
	case KindFloat:
		return wholeFloat(v, v.f)
	case KindString:
		s := strings.TrimSpace(v.s)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errs.Coercion(v, "int")
		}
		return wholeFloat(v, f)
	}
	return 0, errs.Coercion(v, "int")
}

func wholeFloat(v Value, f float64) (int64, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errs.Coercion(v, "int")
	}
	return int64(f), nil
}

// AsFloat converts v to a float64.
func (v Value) AsFloat() (float64, error) {
	switch v.kind {
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindInt:
		return float64(v.i), nil
	case KindFloat:
		return v.f, nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return 0, errs.Coercion(v, "float")
		}
		return f, nil
	}
	return 0, errs.Coercion(v, "float")
}

// AsString converts a scalar v to its textual form.
func (v Value) AsString() (string, error) {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b), nil
	case KindInt:
		return strconv.FormatInt(v.i, 10), nil
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64), nil
	case KindString:
		return v.s, nil
	}
	return "", errs.Coercion(v, "string")
}

var valueType = reflect.TypeFor[Value]()

// To coerces v into a T.
//
// Scalars follow the AsXXX rules with overflow checks. Value, *Map and any
// are returned without conversion. Everything else (structs, slices, maps,
// pointers) is decoded from the JSON text of v. On failure the zero T is
// returned with an error matching errs.ErrCoercion.
func To[T any](v Value) (T, error) {
	var out T
	switch p := any(&out).(type) {
	case *Value:
		*p = v
		return out, nil
	case **Map:
		if v.kind != KindMap {
			return out, errs.Coercion(v, "map")
		}
		*p = v.m
		return out, nil
	}
	if err := assign(reflect.ValueOf(&out).Elem(), v); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func assign(dst reflect.Value, v Value) error {
	t := dst.Type()
	switch t.Kind() {
	case reflect.Bool:
		b, err := v.AsBool()
		if err != nil {
			return err
		}
		dst.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := v.AsInt()
		if err != nil {
			return err
		}
		if dst.OverflowInt(i) {
			return errs.Coercion(v, t.String())
		}
		dst.SetInt(i)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, err := v.AsInt()
		if err != nil {
			return err
		}
		if i < 0 || dst.OverflowUint(uint64(i)) {
			return errs.Coercion(v, t.String())
		}
		dst.SetUint(uint64(i))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := v.AsFloat()
		if err != nil {
			return err
		}
		if dst.OverflowFloat(f) {
			return errs.Coercion(v, t.String())
		}
		dst.SetFloat(f)
		return nil
	case reflect.String:
		s, err := v.AsString()
		if err != nil {
			return err
		}
		dst.SetString(s)
		return nil
	case reflect.Interface:
		if t.NumMethod() == 0 {
			if x := v.Interface(); x != nil {
				dst.Set(reflect.ValueOf(x))
			}
			return nil
		}
	}
	if t == valueType {
		dst.Set(reflect.ValueOf(v))
		return nil
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return errs.Coercion(v, t.String()).Wrap(err)
	}
	if err := json.Unmarshal(b, dst.Addr().Interface()); err != nil {
		return errs.Coercion(v, t.String()).Wrap(err)
	}
	return nil
}
