// Package cipher implements the AES-CBC envelope used for encrypted documents.
//
// The IV is a fixed constant so that equal plaintexts under the same key
// produce equal files. There is no authentication tag: a wrong key is only
// detected when the PKCS#7 padding happens to be invalid.
package cipher

import (
	"bytes"
	"crypto/aes"
	stdcipher "crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/maruel/filekv/internal/errs"
	"golang.org/x/crypto/scrypt"
)

const (
	// IV is the base64 encoded initialization vector shared by every document.
	IV = "aEM5puDebU+PFKrJ2vPkWQ=="
	// DefaultKey is the key used when encryption is enabled without one.
	DefaultKey = "ZzP5rMHiMkWzGzh8fHP9JQ=="
)

var iv = mustDecodeIV()

func mustDecodeIV() []byte {
	b, err := base64.StdEncoding.DecodeString(IV)
	if err != nil || len(b) != aes.BlockSize {
		panic("cipher: invalid IV constant")
	}
	return b
}

// ValidKey reports whether key has a length AES accepts once UTF-8 encoded.
func ValidKey(key string) bool {
	switch len(key) {
	case 16, 24, 32:
		return true
	}
	return false
}

func newBlock(key string) (stdcipher.Block, error) {
	if !ValidKey(key) {
		return nil, errs.Newf(errs.CodeCipherInit, "key must be 16, 24 or 32 bytes, got %d", len(key))
	}
	b, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, errs.New(errs.CodeCipherInit, "invalid cipher key").Wrap(err)
	}
	return b, nil
}

// Seal returns the raw ciphertext of plaintext.
func Seal(key string, plaintext []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	buf := pad(plaintext, block.BlockSize())
	stdcipher.NewCBCEncrypter(block, iv).CryptBlocks(buf, buf)
	return buf, nil
}

// Encrypt returns the base64 encoded ciphertext of plaintext.
func Encrypt(key, plaintext string) (string, error) {
	b, err := Seal(key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// EncryptTo writes the raw ciphertext of plaintext to w.
func EncryptTo(w io.Writer, key, plaintext string) error {
	b, err := Seal(key, []byte(plaintext))
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("failed to write ciphertext: %w", err)
	}
	return nil
}

// Decrypt returns the plaintext of the raw ciphertext.
func Decrypt(key string, ciphertext []byte) (string, error) {
	block, err := newBlock(key)
	if err != nil {
		return "", err
	}
	bs := block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return "", errs.Newf(errs.CodeCipher, "ciphertext length %d is not a positive multiple of %d", len(ciphertext), bs)
	}
	buf := bytes.Clone(ciphertext)
	stdcipher.NewCBCDecrypter(block, iv).CryptBlocks(buf, buf)
	out, err := unpad(buf, bs)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecryptString is the inverse of Encrypt.
func DecryptString(key, encoded string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errs.New(errs.CodeCipher, "invalid base64 ciphertext").Wrap(err)
	}
	return Decrypt(key, b)
}

// DeriveKey stretches a passphrase into a 32 character key accepted by
// Encrypt.
func DeriveKey(passphrase, salt string) (string, error) {
	if passphrase == "" {
		return "", errs.New(errs.CodeCipherInit, "empty passphrase")
	}
	b, err := scrypt.Key([]byte(passphrase), []byte(salt), 1<<15, 8, 1, 16)
	if err != nil {
		return "", errs.New(errs.CodeCipherInit, "key derivation failed").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

func pad(b []byte, bs int) []byte {
	n := bs - len(b)%bs
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte, bs int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > bs || n > len(b) {
		return nil, errs.New(errs.CodeCipher, "invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errs.New(errs.CodeCipher, "invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
