package serial

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/filekv/internal/errs"
	"github.com/maruel/filekv/internal/value"
)

type profile struct {
	Name  string   `json:"name" yaml:"name"`
	Level int      `json:"level" yaml:"level"`
	Tags  []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type loose struct {
	Name  string `json:"name"`
	Extra any    `json:"extra"`
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []Serializer{JSON{}, YAML{}, Strict{}} {
		t.Run(s.Name(), func(t *testing.T) {
			in := profile{Name: "Ada", Level: 3, Tags: []string{"x", "y"}}
			b, err := s.Marshal(in)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var out profile
			if err := s.Unmarshal(b, &out); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if diff := cmp.Diff(in, out); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
			b2, err := s.Marshal(out)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(b) != string(b2) {
				t.Errorf("Marshal() not stable:\n%s\n%s", b, b2)
			}
		})
	}
}

func TestDocument(t *testing.T) {
	m := value.NewMap()
	m.Set("zeta", value.Int(1))
	m.Set("alpha", value.String("a"))
	doc := value.FromMap(m)
	for _, s := range []Serializer{JSON{}, YAML{}, Strict{}} {
		t.Run(s.Name(), func(t *testing.T) {
			b, err := s.Marshal(doc)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if strings.Index(string(b), "zeta") > strings.Index(string(b), "alpha") {
				t.Errorf("Marshal() lost key order:\n%s", b)
			}
			var got value.Value
			if err := s.Unmarshal(b, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !got.Equal(doc) {
				t.Errorf("Unmarshal() = %v, want %v", got, doc)
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	b, err := JSON{}.Marshal(map[string]string{"a": "<b>"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := "{\n  \"a\": \"<b>\"\n}\n"
	if string(b) != want {
		t.Errorf("Marshal() = %q, want %q", b, want)
	}
}

func TestMalformed(t *testing.T) {
	for _, s := range []Serializer{JSON{}, YAML{}, Strict{}} {
		t.Run(s.Name(), func(t *testing.T) {
			var out profile
			err := s.Unmarshal([]byte("{not: [valid"), &out)
			if !errors.Is(err, errs.ErrSerialization) {
				t.Errorf("Unmarshal() error = %v, want ErrSerialization", err)
			}
		})
	}
	t.Run("type mismatch", func(t *testing.T) {
		var out profile
		err := JSON{}.Unmarshal([]byte(`{"level":"high"}`), &out)
		if !errors.Is(err, errs.ErrSerialization) {
			t.Errorf("Unmarshal() error = %v, want ErrSerialization", err)
		}
	})
}

func TestStrict(t *testing.T) {
	t.Run("rejects interface fields", func(t *testing.T) {
		_, err := Strict{}.Marshal(loose{Name: "x", Extra: 1})
		if !errors.Is(err, errs.ErrSerialization) {
			t.Fatalf("Marshal() error = %v, want ErrSerialization", err)
		}
		if !strings.Contains(err.Error(), "Extra") {
			t.Errorf("Marshal() error = %v, want field name", err)
		}
		var out loose
		if err := (Strict{}).Unmarshal([]byte(`{"name":"x"}`), &out); !errors.Is(err, errs.ErrSerialization) {
			t.Errorf("Unmarshal() error = %v, want ErrSerialization", err)
		}
		var anything any
		if err := (Strict{}).Unmarshal([]byte(`1`), &anything); !errors.Is(err, errs.ErrSerialization) {
			t.Errorf("Unmarshal(*any) error = %v, want ErrSerialization", err)
		}
		if _, err := (Strict{}).Marshal(map[string]any{"a": 1}); !errors.Is(err, errs.ErrSerialization) {
			t.Errorf("Marshal(map[string]any) error = %v, want ErrSerialization", err)
		}
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		var out profile
		err := Strict{}.Unmarshal([]byte(`{"name":"x","bogus":1}`), &out)
		if !errors.Is(err, errs.ErrSerialization) {
			t.Errorf("Unmarshal() error = %v, want ErrSerialization", err)
		}
		if err := (JSON{}).Unmarshal([]byte(`{"name":"x","bogus":1}`), &out); err != nil {
			t.Errorf("JSON.Unmarshal() error = %v", err)
		}
	})

	t.Run("accepts recursive types", func(t *testing.T) {
		type node struct {
			Name     string  `json:"name"`
			Children []*node `json:"children,omitempty"`
		}
		in := node{Name: "root", Children: []*node{{Name: "leaf"}}}
		b, err := Strict{}.Marshal(in)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var out node
		if err := (Strict{}).Unmarshal(b, &out); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if diff := cmp.Diff(in, out); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		s, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q) error = %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("Lookup(%q).Name() = %q", name, s.Name())
		}
	}
	if _, err := Lookup("JSON"); err != nil {
		t.Errorf("Lookup(\"JSON\") error = %v", err)
	}
	if _, err := Lookup("xml"); err == nil {
		t.Error("Lookup(\"xml\") succeeded")
	}
}
