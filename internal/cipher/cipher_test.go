package cipher

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/maruel/filekv/internal/errs"
)

func TestEncrypt(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		keys := []string{
			"0123456789abcdef",
			DefaultKey,
			"0123456789abcdef0123456789abcdef",
		}
		texts := []string{"", "a", "exactly16bytes!!", `{"profile":{"name":"Ada","level":3}}`, "héllo wörld"}
		for _, key := range keys {
			for _, text := range texts {
				enc, err := Encrypt(key, text)
				if err != nil {
					t.Fatalf("Encrypt() error = %v", err)
				}
				got, err := DecryptString(key, enc)
				if err != nil {
					t.Fatalf("DecryptString() error = %v", err)
				}
				if got != text {
					t.Errorf("DecryptString() = %q, want %q", got, text)
				}
			}
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a, _ := Encrypt(DefaultKey, "same")
		b, _ := Encrypt(DefaultKey, "same")
		if a != b {
			t.Errorf("Encrypt() not deterministic: %q != %q", a, b)
		}
	})

	t.Run("key length", func(t *testing.T) {
		tests := []struct {
			name    string
			key     string
			wantErr bool
		}{
			{"15", strings.Repeat("k", 15), true},
			{"16", strings.Repeat("k", 16), false},
			{"17", strings.Repeat("k", 17), true},
			{"24", strings.Repeat("k", 24), false},
			{"32", strings.Repeat("k", 32), false},
			{"33", strings.Repeat("k", 33), true},
			{"empty", "", true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Encrypt(tt.key, "x")
				if tt.wantErr {
					if !errors.Is(err, errs.ErrCipherInit) {
						t.Errorf("Encrypt() error = %v, want ErrCipherInit", err)
					}
				} else if err != nil {
					t.Errorf("Encrypt() error = %v", err)
				}
			})
		}
	})

	t.Run("EncryptTo matches Seal", func(t *testing.T) {
		var buf bytes.Buffer
		if err := EncryptTo(&buf, DefaultKey, "payload"); err != nil {
			t.Fatalf("EncryptTo() error = %v", err)
		}
		want, err := Seal(DefaultKey, []byte("payload"))
		if err != nil {
			t.Fatalf("Seal() error = %v", err)
		}
		if !bytes.Equal(buf.Bytes(), want) {
			t.Error("EncryptTo() output differs from Seal()")
		}
		got, err := Decrypt(DefaultKey, buf.Bytes())
		if err != nil || got != "payload" {
			t.Errorf("Decrypt() = %q, %v", got, err)
		}
	})
}

func TestDecrypt(t *testing.T) {
	t.Run("truncated", func(t *testing.T) {
		b, _ := Seal(DefaultKey, []byte("some longer plaintext value"))
		_, err := Decrypt(DefaultKey, b[:len(b)-3])
		if !errors.Is(err, errs.ErrCipher) {
			t.Errorf("Decrypt() error = %v, want ErrCipher", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := Decrypt(DefaultKey, nil); !errors.Is(err, errs.ErrCipher) {
			t.Errorf("Decrypt() error = %v, want ErrCipher", err)
		}
	})

	t.Run("bad base64", func(t *testing.T) {
		if _, err := DecryptString(DefaultKey, "!!!"); !errors.Is(err, errs.ErrCipher) {
			t.Errorf("DecryptString() error = %v, want ErrCipher", err)
		}
	})

	t.Run("wrong key never yields plaintext", func(t *testing.T) {
		b, _ := Seal(DefaultKey, []byte("secret document"))
		got, err := Decrypt("0123456789abcdef0123456789abcdef", b)
		if err == nil && got == "secret document" {
			t.Error("Decrypt() with wrong key returned the original plaintext")
		}
		if err != nil && !errors.Is(err, errs.ErrCipher) {
			t.Errorf("Decrypt() error = %v, want ErrCipher", err)
		}
	})
}

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey("correct horse", "filekv")
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if !ValidKey(k1) {
		t.Errorf("DeriveKey() length = %d, not a valid key", len(k1))
	}
	k2, _ := DeriveKey("correct horse", "filekv")
	if k1 != k2 {
		t.Error("DeriveKey() not deterministic")
	}
	k3, _ := DeriveKey("correct horse", "other")
	if k1 == k3 {
		t.Error("DeriveKey() ignores salt")
	}
	if _, err := DeriveKey("", "x"); !errors.Is(err, errs.ErrCipherInit) {
		t.Errorf("DeriveKey(\"\") error = %v, want ErrCipherInit", err)
	}
}
