package kvstore

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/maruel/filekv/internal/errs"
	"github.com/maruel/filekv/internal/filestore"
)

// LoadRaw returns the bound file's contents verbatim, "" when it does not
// exist.
func (s *Store) LoadRaw() (string, error) {
	s.mu.Lock()
	f, err := s.bound("load raw")
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return f.LoadRaw()
}

// SaveRaw replaces the bound file's contents with text. The in-memory
// document is left untouched and is replaced on the next read.
func (s *Store) SaveRaw(ctx context.Context, text string) (*filestore.Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.bound("save raw")
	if err != nil {
		return nil, err
	}
	s.stale.Store(true)
	return f.SaveRaw(ctx, text), nil
}

// Exists reports whether the bound file exists.
func (s *Store) Exists() (bool, error) {
	s.mu.Lock()
	f, err := s.bound("exists")
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.Exists(), nil
}

// Delete removes the directory containing the bound file.
func (s *Store) Delete() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.bound("delete")
	if err != nil {
		return false, err
	}
	s.stale.Store(true)
	return f.Delete()
}

// DeleteFile removes the bound file only.
func (s *Store) DeleteFile() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.bound("delete file")
	if err != nil {
		return false, err
	}
	s.stale.Store(true)
	return f.DeleteFile()
}

// Files lists the files next to the bound file matching pattern.
func (s *Store) Files(pattern string) ([]string, error) {
	s.mu.Lock()
	f, err := s.bound("files")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Files(pattern)
}

// IsLocked probes whether another process holds the bound file, using the
// configured retries and delay.
func (s *Store) IsLocked(ctx context.Context) (bool, error) {
	s.mu.Lock()
	f, err := s.bound("is locked")
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.IsLocked(ctx, s.settings.LockRetries, s.settings.LockDelay()), nil
}

// SaveInto binds the store to path, keeps the document already there, then
// stores v under key and saves.
func (s *Store) SaveInto(ctx context.Context, key string, v any, path string, lock filestore.LockMode) (*filestore.Pending, error) {
	if err := s.InitializePath(ctx, path, lock); err != nil {
		return nil, err
	}
	if err := s.Load(ctx); err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	return s.SaveKey(ctx, key, v)
}

// RemoveFile deletes a file that need not be the bound one. A relative path
// is resolved against the configured base directory unless absolute is
// set, in which case it is used as is. It reports false when the file did
// not exist.
func (s *Store) RemoveFile(ctx context.Context, path string, absolute bool) (bool, error) {
	if path == "" {
		return false, errors.New("empty path")
	}
	if !absolute {
		base, err := s.settings.BaseDir()
		if err != nil {
			return false, err
		}
		path = filepath.Join(base, path)
	}
	ok, err := filestore.New(filepath.Dir(path), filepath.Base(path)).DeleteFile()
	if err == nil && !ok {
		slog.WarnContext(ctx, "File does not exist", "path", path)
	}
	return ok, err
}

// FilesIn lists the files in dir matching pattern, sorted.
func (s *Store) FilesIn(dir, pattern string) ([]string, error) {
	return filestore.New(dir, "").Files(pattern)
}
