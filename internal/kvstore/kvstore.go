// Package kvstore keeps an ordered key/value document in memory and
// synchronizes it with one file.
//
// Reads reload the document from disk before answering, so another process
// editing the file is always observed. Mutations only touch memory until
// Save is called, or immediately when auto-save is enabled.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maruel/filekv/internal/config"
	"github.com/maruel/filekv/internal/errs"
	"github.com/maruel/filekv/internal/filestore"
	"github.com/maruel/filekv/internal/monitor"
	"github.com/maruel/filekv/internal/serial"
	"github.com/maruel/filekv/internal/value"
)

// Option configures a Store.
type Option func(*Store)

// WithSerializer overrides the serializer named in the settings.
func WithSerializer(s serial.Serializer) Option {
	return func(st *Store) {
		if s != nil {
			st.serializer = s
		}
	}
}

// WithOnSettled registers a function called when the bound file settled
// after a write, by this process or another one. It runs on a timer
// goroutine and must not call Deinitialize, Close or Initialize.
func WithOnSettled(fn func(monitor.Event)) Option {
	return func(st *Store) { st.onSettled = fn }
}

// WithQuietPeriod overrides the settings' monitor quiet period.
func WithQuietPeriod(d time.Duration) Option {
	return func(st *Store) { st.quiet = d }
}

// Store is a document bound to a file. The zero value is not usable; call
// New then Initialize.
type Store struct {
	settings   config.Settings
	serializer serial.Serializer
	onSettled  func(monitor.Event)
	quiet      time.Duration

	// stale is set by the monitor when the file changed on disk.
	stale atomic.Bool

	mu     sync.Mutex
	file   *filestore.FileStore
	mon    *monitor.Monitor
	doc    *value.Map
	loaded bool
}

// New returns an unbound Store. Every document operation fails with
// errs.ErrUninitialized until Initialize succeeds.
func New(settings config.Settings, opts ...Option) (*Store, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	ser, err := serial.Lookup(settings.Serializer)
	if err != nil {
		return nil, err
	}
	s := &Store{
		settings:   settings,
		serializer: ser,
		quiet:      settings.QuietPeriod(),
		doc:        value.NewMap(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Settings returns the settings the store was created with.
func (s *Store) Settings() config.Settings {
	return s.settings
}

// Initialize binds the store to <base dir>/<name>.<extension>, clears the
// in-memory document and restarts the file monitor. The monitor runs until
// ctx is done or the store is deinitialized.
func (s *Store) Initialize(ctx context.Context, name string, lock filestore.LockMode) error {
	return s.InitializeWithExtension(ctx, name, s.settings.Extension, lock)
}

// InitializeWithExtension is Initialize with an explicit file extension.
func (s *Store) InitializeWithExtension(ctx context.Context, name, ext string, lock filestore.LockMode) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid document name %q", name)
	}
	dir, err := s.settings.BaseDir()
	if err != nil {
		return err
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "json"
	}
	return s.bind(ctx, dir, name+"."+ext, lock)
}

// InitializePath binds the store to an explicit file path, ignoring the
// configured base directory.
func (s *Store) InitializePath(ctx context.Context, path string, lock filestore.LockMode) error {
	if path == "" {
		return errors.New("empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return s.bind(ctx, filepath.Dir(abs), filepath.Base(abs), lock)
}

func (s *Store) bind(ctx context.Context, dir, name string, lock filestore.LockMode) error {
	f := filestore.New(dir, name,
		filestore.WithKey(s.settings.Key),
		filestore.WithSerializer(s.serializer),
		filestore.WithLockMode(lock),
		filestore.WithProbe(s.settings.LockRetries, s.settings.LockDelay()))
	m := monitor.New(dir, name, monitor.WithQuietPeriod(s.quiet), monitor.WithNotify(s.settled))
	if err := m.Start(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	old := s.mon
	s.file = f
	s.mon = m
	s.doc = value.NewMap()
	s.loaded = false
	s.stale.Store(false)
	s.mu.Unlock()
	if old != nil {
		old.Stop()
	}
	slog.DebugContext(ctx, "Store initialized", "path", f.Path(), "lock", lock.String())
	return nil
}

// Deinitialize stops the monitor, unbinds the file and clears memory.
// Pending saves are not waited for; see Close.
func (s *Store) Deinitialize() {
	s.mu.Lock()
	m := s.mon
	s.file = nil
	s.mon = nil
	s.doc = value.NewMap()
	s.loaded = false
	s.mu.Unlock()
	if m != nil {
		m.Stop()
	}
}

// Close waits for in-flight saves then deinitializes the store.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	f := s.file
	s.mu.Unlock()
	var err error
	if f != nil {
		err = f.Flush(ctx)
	}
	s.Deinitialize()
	return err
}

func (s *Store) settled(ev monitor.Event) {
	s.stale.Store(true)
	if s.onSettled != nil {
		s.onSettled(ev)
	}
}

// Invalidate forces the next read to reload the file when CacheReads is
// enabled.
func (s *Store) Invalidate() {
	s.stale.Store(true)
}

// Path returns the bound file path, or "" when uninitialized.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ""
	}
	return s.file.Path()
}

// bound returns the file or an uninitialized error. s.mu must be held.
func (s *Store) bound(op string) (*filestore.FileStore, error) {
	if s.file == nil {
		return nil, errs.Uninitialized(op)
	}
	return s.file, nil
}

// Load reloads the whole document from disk, ignoring CacheReads.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bound("load"); err != nil {
		return err
	}
	s.loaded = false
	return s.reload(ctx)
}

// reload refreshes s.doc from disk unless the cache is still valid. s.mu
// must be held and the store bound.
func (s *Store) reload(ctx context.Context) error {
	if s.settings.CacheReads && s.loaded && !s.stale.Load() {
		return nil
	}
	// Saves already submitted by this store land before the file is read.
	if err := s.file.Flush(ctx); err != nil {
		return err
	}
	s.stale.Store(false)
	v, err := filestore.Load[value.Value](ctx, s.file, s.settings.Encryption)
	if err != nil {
		s.stale.Store(true)
		return err
	}
	switch v.Kind() {
	case value.KindNull:
		s.doc = value.NewMap()
	case value.KindMap:
		s.doc = v.Map()
	default:
		s.stale.Store(true)
		err := errs.Newf(errs.CodeSerialization, "document is a %s, not a map", v.Kind()).WithOp("load").WithPath(s.file.Path())
		slog.ErrorContext(ctx, "Failed to load document", "path", s.file.Path(), "err", err)
		return err
	}
	s.loaded = true
	return nil
}
