// Package filestore reads and writes a single document file, optionally
// encrypted, honoring advisory locks held by other processes.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/maruel/filekv/internal/cipher"
	"github.com/maruel/filekv/internal/errs"
	"github.com/maruel/filekv/internal/serial"
	"github.com/maruel/filekv/internal/value"
)

// LockMode selects how the file is shared with other processes.
type LockMode int

const (
	// Exclusive holds an exclusive advisory lock while writing and a shared
	// one while reading. Conflicting access fails with errs.ErrLocked.
	Exclusive LockMode = iota
	// Shared takes no lock.
	Shared
)

func (m LockMode) String() string {
	if m == Shared {
		return "shared"
	}
	return "exclusive"
}

const (
	// DefaultProbeRetries is the number of lock probe attempts made before a save.
	DefaultProbeRetries = 3
	// DefaultProbeDelay is the pause between lock probe attempts.
	DefaultProbeDelay = 100 * time.Millisecond
)

// FileStore owns one (directory, file name) pair.
//
// Only one FileStore per physical file should exist in a process.
type FileStore struct {
	dir        string
	name       string
	key        string
	serializer serial.Serializer
	lockMode   LockMode
	retries    int
	delay      time.Duration

	mu   sync.Mutex
	last *Pending
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithKey sets the cipher key used by encrypted loads and saves.
func WithKey(key string) Option {
	return func(f *FileStore) { f.key = key }
}

// WithSerializer overrides the default JSON serializer.
func WithSerializer(s serial.Serializer) Option {
	return func(f *FileStore) {
		if s != nil {
			f.serializer = s
		}
	}
}

// WithLockMode sets the sharing mode.
func WithLockMode(m LockMode) Option {
	return func(f *FileStore) { f.lockMode = m }
}

// WithProbe sets the lock probe used before each save.
func WithProbe(retries int, delay time.Duration) Option {
	return func(f *FileStore) {
		f.retries = retries
		f.delay = delay
	}
}

// New returns a FileStore for dir/name. Nothing is touched on disk.
func New(dir, name string, opts ...Option) *FileStore {
	f := &FileStore{
		dir:        dir,
		name:       name,
		serializer: serial.JSON{},
		retries:    DefaultProbeRetries,
		delay:      DefaultProbeDelay,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Dir returns the containing directory.
func (f *FileStore) Dir() string { return f.dir }

// Name returns the file name.
func (f *FileStore) Name() string { return f.name }

// Path returns the full path of the file.
func (f *FileStore) Path() string { return filepath.Join(f.dir, f.name) }

// Serializer returns the serializer in use.
func (f *FileStore) Serializer() serial.Serializer { return f.serializer }

// LockMode returns the sharing mode.
func (f *FileStore) LockMode() LockMode { return f.lockMode }

// Exists reports whether the file exists.
func (f *FileStore) Exists() bool {
	st, err := os.Stat(f.Path())
	return err == nil && st.Mode().IsRegular()
}

// LoadRaw returns the file contents verbatim. A missing file is not an
// error and yields "".
func (f *FileStore) LoadRaw() (string, error) {
	b, err := f.read()
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Load reads and decodes the file into a T.
//
// A missing file returns errs.ErrNotFound. When the payload does not decode
// directly into T it is decoded as a generic value and coerced; if that
// also fails the error is logged and the zero T is returned along with an
// error matching errs.ErrSerialization or errs.ErrCoercion. An empty file
// yields the zero T and no error.
func Load[T any](ctx context.Context, f *FileStore, encrypted bool) (T, error) {
	var zero T
	text, err := f.readText(encrypted)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			slog.ErrorContext(ctx, "Failed to read document", "path", f.Path(), "err", err)
		}
		return zero, err
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return zero, nil
	}
	var out T
	derr := f.serializer.Unmarshal(text, &out)
	if derr == nil {
		return out, nil
	}
	var generic value.Value
	if err := f.serializer.Unmarshal(text, &generic); err != nil {
		slog.ErrorContext(ctx, "Failed to decode document", "path", f.Path(), "err", derr)
		return zero, derr
	}
	out, err = value.To[T](generic)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to coerce document", "path", f.Path(), "type", fmt.Sprintf("%T", zero), "err", err)
		return zero, err
	}
	return out, nil
}

// readText returns the decoded text of the file, decrypting it if needed.
func (f *FileStore) readText(encrypted bool) ([]byte, error) {
	b, err := f.read()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.NotFound("load", f.Path())
	}
	if err != nil {
		return nil, err
	}
	if !encrypted {
		return b, nil
	}
	if f.key == "" {
		return nil, errs.New(errs.CodeCipherInit, "encryption key is empty").WithOp("load").WithPath(f.Path())
	}
	if len(b) == 0 {
		return nil, nil
	}
	text, err := cipher.Decrypt(f.key, b)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// read returns the raw bytes, holding a shared lock in Exclusive mode.
func (f *FileStore) read() ([]byte, error) {
	p := f.Path()
	fh, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, errs.New(errs.CodePermission, "cannot open file").WithOp("read").WithPath(p).Wrap(err)
		}
		return nil, err
	}
	defer fh.Close()
	if f.lockMode == Exclusive {
		if err := lockFile(fh, false); err != nil {
			return nil, lockError("read", p, err)
		}
		defer unlockFile(fh)
	}
	b, err := io.ReadAll(fh)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return b, nil
}

// Delete removes the containing directory and everything in it. It reports
// whether the directory existed.
func (f *FileStore) Delete() (bool, error) {
	st, err := os.Stat(f.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", f.dir, err)
	}
	if !st.IsDir() {
		return false, nil
	}
	if err := os.RemoveAll(f.dir); err != nil {
		return true, fmt.Errorf("failed to delete %s: %w", f.dir, err)
	}
	return true, nil
}

// DeleteFile removes only the file. It reports false when the file did not
// exist. If the file disappears between the existence check and the
// removal, errs.ErrNotFound is returned.
func (f *FileStore) DeleteFile() (bool, error) {
	if !f.Exists() {
		return false, nil
	}
	p := f.Path()
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, errs.NotFound("delete", p).Wrap(err)
		}
		return false, fmt.Errorf("failed to delete %s: %w", p, err)
	}
	return true, nil
}

// Files returns the names of the files in the store directory matching the
// glob pattern, sorted. A missing directory yields no names.
func (f *FileStore) Files(pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", f.dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || isTempName(e.Name()) {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}
