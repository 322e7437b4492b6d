package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MarshalJSON implements json.Marshaler. Map order is preserved and floats
// always carry a fractional part or exponent so they decode back as floats.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return fmt.Errorf("unsupported float value %v", v.f)
		}
		buf.WriteString(formatFloat(v.f))
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindList:
		buf.WriteByte('[')
		for i, e := range v.l {
			if i != 0 {
				buf.WriteByte(',')
			}
			if err := e.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		first := true
		for p := v.m.Oldest(); p != nil; p = p.Next() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			k, err := json.Marshal(p.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := p.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown kind %s", v.kind)
	}
	return nil
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// UnmarshalJSON implements json.Unmarshaler. Object key order is preserved.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeJSON(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	*v = out
	return nil
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return parseNumber(t.String())
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				e, err := decodeJSON(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, e)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return List(items...), nil
		case '{':
			m := NewMap()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				k, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", kt)
				}
				e, err := decodeJSON(dec)
				if err != nil {
					return Value{}, err
				}
				m.Set(k, e)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return FromMap(m), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
}

func parseNumber(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Float(f), nil
}

func fromJSON(x any) (Value, error) {
	b, err := json.Marshal(x)
	if err != nil {
		return Value{}, fmt.Errorf("failed to convert %T: %w", x, err)
	}
	var v Value
	if err := v.UnmarshalJSON(b); err != nil {
		return Value{}, fmt.Errorf("failed to convert %T: %w", x, err)
	}
	return v, nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (any, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.b, nil
	case KindInt:
		return v.i, nil
	case KindFloat:
		s := formatFloat(v.f)
		switch {
		case math.IsNaN(v.f):
			s = ".nan"
		case math.IsInf(v.f, 1):
			s = ".inf"
		case math.IsInf(v.f, -1):
			s = "-.inf"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s}, nil
	case KindString:
		return v.s, nil
	case KindList:
		return v.l, nil
	case KindMap:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for p := v.m.Oldest(); p != nil; p = p.Next() {
			k := &yaml.Node{}
			if err := k.Encode(p.Key); err != nil {
				return nil, err
			}
			e := &yaml.Node{}
			if err := e.Encode(p.Value); err != nil {
				return nil, err
			}
			n.Content = append(n.Content, k, e)
		}
		return n, nil
	}
	return nil, fmt.Errorf("unknown kind %s", v.kind)
}

// UnmarshalYAML implements yaml.Unmarshaler. Mapping key order is preserved.
func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	out, err := decodeYAML(n)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func decodeYAML(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return decodeYAML(n.Content[0])
	case yaml.AliasNode:
		return decodeYAML(n.Alias)
	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			e, err := decodeYAML(c)
			if err != nil {
				return Value{}, err
			}
			items = append(items, e)
		}
		return List(items...), nil
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			var k string
			if err := n.Content[i].Decode(&k); err != nil {
				return Value{}, fmt.Errorf("line %d: mapping key: %w", n.Content[i].Line, err)
			}
			e, err := decodeYAML(n.Content[i+1])
			if err != nil {
				return Value{}, err
			}
			m.Set(k, e)
		}
		return FromMap(m), nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return Null(), nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return Value{}, err
			}
			return Bool(b), nil
		case "!!int":
			var i int64
			if err := n.Decode(&i); err == nil {
				return Int(i), nil
			}
			var f float64
			if err := n.Decode(&f); err != nil {
				return Value{}, err
			}
			return Float(f), nil
		case "!!float":
			var f float64
			if err := n.Decode(&f); err != nil {
				return Value{}, err
			}
			return Float(f), nil
		default:
			return String(n.Value), nil
		}
	}
	return Value{}, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}
