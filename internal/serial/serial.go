// Package serial converts documents to and from their on-disk text.
package serial

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/maruel/filekv/internal/errs"
	"gopkg.in/yaml.v3"
)

// Serializer encodes values to text and back.
type Serializer interface {
	// Name is the identifier used in configuration.
	Name() string
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes data into v, which must be a non-nil pointer.
	Unmarshal(data []byte, v any) error
}

var registry = map[string]Serializer{
	"json":   JSON{},
	"yaml":   YAML{},
	"strict": Strict{},
}

// Lookup returns the serializer registered under name.
func Lookup(name string) (Serializer, error) {
	s, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown serializer %q, valid: %s", name, strings.Join(Names(), ", "))
	}
	return s, nil
}

// Names returns the registered serializer names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// JSON is the general purpose serializer. Output is indented with two
// spaces and ends with a newline.
type JSON struct{}

// Name implements Serializer.
func (JSON) Name() string { return "json" }

// Marshal implements Serializer.
func (JSON) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, errs.Serialization("encode json", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal implements Serializer.
func (JSON) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errs.Serialization("decode json", err)
	}
	return nil
}

// YAML serializes with gopkg.in/yaml.v3.
type YAML struct{}

// Name implements Serializer.
func (YAML) Name() string { return "yaml" }

// Marshal implements Serializer.
func (YAML) Marshal(v any) (out []byte, err error) {
	// yaml.v3 panics on some unsupported types instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, errs.Serialization("encode yaml", fmt.Errorf("%v", r))
		}
	}()
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, errs.Serialization("encode yaml", err)
	}
	if err := enc.Close(); err != nil {
		return nil, errs.Serialization("encode yaml", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal implements Serializer.
func (YAML) Unmarshal(data []byte, v any) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return errs.Serialization("decode yaml", err)
	}
	return nil
}

// Strict is a JSON serializer limited to concrete types. Values whose type
// contains an interface typed field, element or map value are rejected, as
// are unknown object fields on decode. Types implementing json.Marshaler
// and json.Unmarshaler are treated as opaque.
type Strict struct{}

// Name implements Serializer.
func (Strict) Name() string { return "strict" }

// Marshal implements Serializer.
func (Strict) Marshal(v any) ([]byte, error) {
	if err := checkConcrete(v); err != nil {
		return nil, errs.Serialization("encode strict", err)
	}
	return JSON{}.Marshal(v)
}

// Unmarshal implements Serializer.
func (Strict) Unmarshal(data []byte, v any) error {
	if err := checkConcrete(v); err != nil {
		return errs.Serialization("decode strict", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.Serialization("decode strict", err)
	}
	if dec.More() {
		return errs.Serialization("decode strict", errors.New("unexpected data after JSON value"))
	}
	return nil
}
