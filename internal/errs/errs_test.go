package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestError(t *testing.T) {
	t.Run("Is matches sentinel by code", func(t *testing.T) {
		err := NotFound("load", "/tmp/x.json")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("errors.Is(%v, ErrNotFound) = false", err)
		}
		if errors.Is(err, ErrCipher) {
			t.Errorf("errors.Is(%v, ErrCipher) = true", err)
		}
	})

	t.Run("Is through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("failed to read: %w", Serialization("decode", errors.New("bad")))
		if !errors.Is(err, ErrSerialization) {
			t.Errorf("errors.Is(%v, ErrSerialization) = false", err)
		}
		if got := CodeOf(err); got != CodeSerialization {
			t.Errorf("CodeOf() = %q, want %q", got, CodeSerialization)
		}
	})

	t.Run("Unwrap exposes cause", func(t *testing.T) {
		err := New(CodePermission, "cannot open").Wrap(fs.ErrPermission)
		if !errors.Is(err, fs.ErrPermission) {
			t.Errorf("errors.Is(%v, fs.ErrPermission) = false", err)
		}
	})

	t.Run("Error string", func(t *testing.T) {
		tests := []struct {
			name string
			err  *Error
			want string
		}{
			{"plain", New(CodeCipher, "bad padding"), "bad padding"},
			{"op", New(CodeCipher, "bad padding").WithOp("decrypt"), "decrypt: bad padding"},
			{"op and path", NotFound("load", "a.json"), "load: file not found (a.json)"},
			{"wrapped", Uninitialized("get").Wrap(errors.New("x")), "get: store is not initialized: x"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := tt.err.Error(); got != tt.want {
					t.Errorf("Error() = %q, want %q", got, tt.want)
				}
			})
		}
	})

	t.Run("CodeOf foreign error", func(t *testing.T) {
		if got := CodeOf(errors.New("x")); got != "" {
			t.Errorf("CodeOf() = %q, want empty", got)
		}
	})
}
