// Package value implements the schema-less values stored in a document.
package value

import (
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind is the variant held by a Value.
type Kind uint8

const (
	// KindNull is the zero Value.
	KindNull Kind = iota
	KindBool
	// KindInt is a number without a fractional part as written on disk.
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

var kindNames = [...]string{"null", "bool", "int", "float", "string", "list", "map"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Map is an insertion ordered mapping from key to Value.
type Map = orderedmap.OrderedMap[string, Value]

// NewMap returns an empty Map.
func NewMap() *Map {
	return orderedmap.New[string, Value]()
}

// Value is a tagged union over null, bool, number, string, list and map.
//
// The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	l    []Value
	m    *Map
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integral number.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point number.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List returns a sequence Value. The slice is not copied.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, l: items}
}

// FromMap returns a mapping Value backed by m.
func FromMap(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

// Kind returns the variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumber reports whether v is an int or a float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// Items returns the elements of a list, or nil.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.l
}

// Map returns the mapping of a map Value, or nil.
func (v Value) Map() *Map {
	if v.kind != KindMap {
		return nil
	}
	return v.m
}

// Get returns the element at key when v is a map.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	return v.m.Get(key)
}

// From converts a Go value into a Value.
//
// Maps with string keys are inserted in sorted key order. Types not handled
// directly go through their JSON encoding.
func From(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Null(), nil
		}
		return *t, nil
	case *Map:
		return FromMap(t), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint:
		return fromUint(uint64(t)), nil
	case uint64:
		return fromUint(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case []Value:
		return List(t...), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, e := range t {
			ev, err := From(e)
			if err != nil {
				return Value{}, err
			}
			items = append(items, ev)
		}
		return List(items...), nil
	case map[string]any:
		m := NewMap()
		for _, k := range slices.Sorted(maps.Keys(t)) {
			ev, err := From(t[k])
			if err != nil {
				return Value{}, err
			}
			m.Set(k, ev)
		}
		return FromMap(m), nil
	}
	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return Null(), nil
	}
	return fromJSON(x)
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Int(int64(u))
}

// Interface returns v as plain Go values: nil, bool, int64, float64,
// string, []any or map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.l))
		for i, e := range v.l {
			out[i] = e.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, v.m.Len())
		for p := v.m.Oldest(); p != nil; p = p.Next() {
			out[p.Key] = p.Value.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether v and o hold the same data. Map order is
// significant. An int and a float are equal when numerically identical.
func (v Value) Equal(o Value) bool {
	if v.IsNumber() && o.IsNumber() {
		if v.kind == KindInt && o.kind == KindInt {
			return v.i == o.i
		}
		return v.number() == o.number()
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindList:
		return slices.EqualFunc(v.l, o.l, Value.Equal)
	case KindMap:
		if v.m.Len() != o.m.Len() {
			return false
		}
		for a, b := v.m.Oldest(), o.m.Oldest(); a != nil; a, b = a.Next(), b.Next() {
			if a.Key != b.Key || !a.Value.Equal(b.Value) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) number() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// String returns the compact JSON text of v.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.kind, err)
	}
	return string(b)
}
