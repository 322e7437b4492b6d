package kvstore

import (
	"context"
	"log/slog"

	"github.com/maruel/filekv/internal/errs"
	"github.com/maruel/filekv/internal/filestore"
	"github.com/maruel/filekv/internal/value"
)

// Get reloads the document and returns the value stored under key
// converted to T.
//
// A missing key returns errs.ErrNotFound. A value that cannot be converted
// is logged and the zero T is returned with an error matching
// errs.ErrCoercion. String values holding serialized text of T are decoded.
func Get[T any](ctx context.Context, s *Store, key string) (T, error) {
	var zero T
	v, ok, err := s.GetValue(ctx, key)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, errs.Newf(errs.CodeNotFound, "key %q not found", key).WithOp("get")
	}
	out, err := value.To[T](v)
	if err == nil {
		return out, nil
	}
	if v.Kind() == value.KindString {
		text, _ := v.AsString()
		var decoded T
		if s.serializer.Unmarshal([]byte(text), &decoded) == nil {
			return decoded, nil
		}
	}
	slog.ErrorContext(ctx, "Failed to convert value", "key", key, "err", err)
	return zero, err
}

// GetValue reloads the document and returns the raw value under key.
func (s *Store) GetValue(ctx context.Context, key string) (value.Value, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bound("get"); err != nil {
		return value.Value{}, false, err
	}
	if err := s.reload(ctx); err != nil {
		return value.Value{}, false, err
	}
	v, ok := s.doc.Get(key)
	return v, ok, nil
}

// Set stores v under key in memory. An existing key keeps its position.
// With auto-save enabled the whole document is then persisted.
func (s *Store) Set(ctx context.Context, key string, v any) error {
	val, err := value.From(v)
	if err != nil {
		return errs.Serialization("set", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bound("set"); err != nil {
		return err
	}
	s.doc.Set(key, val)
	s.autoSave(ctx)
	return nil
}

// SaveKey stores v under key and persists the document, regardless of
// auto-save.
func (s *Store) SaveKey(ctx context.Context, key string, v any) (*filestore.Pending, error) {
	val, err := value.From(v)
	if err != nil {
		return nil, errs.Serialization("save", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bound("save"); err != nil {
		return nil, err
	}
	s.doc.Set(key, val)
	return s.save(ctx), nil
}

// Save persists the in-memory document.
func (s *Store) Save(ctx context.Context) (*filestore.Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bound("save"); err != nil {
		return nil, err
	}
	return s.save(ctx), nil
}

// save starts an asynchronous save. s.mu must be held.
func (s *Store) save(ctx context.Context) *filestore.Pending {
	return s.file.Save(ctx, value.FromMap(s.doc), s.settings.Encryption)
}

// autoSave saves when enabled. The save outlives ctx cancellation. s.mu
// must be held.
func (s *Store) autoSave(ctx context.Context) {
	if s.settings.AutoSave {
		s.save(context.WithoutCancel(ctx))
	}
}

// Remove deletes key from memory and reports whether it was present.
func (s *Store) Remove(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bound("remove"); err != nil {
		return false, err
	}
	_, ok := s.doc.Delete(key)
	s.autoSave(ctx)
	return ok, nil
}

// Clear empties the in-memory document.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bound("clear"); err != nil {
		return err
	}
	s.doc = value.NewMap()
	s.autoSave(ctx)
	return nil
}

// ContainsKey reports whether key is in memory. The file is not read.
func (s *Store) ContainsKey(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bound("contains"); err != nil {
		return false, err
	}
	_, ok := s.doc.Get(key)
	return ok, nil
}

// Len returns the number of keys in memory.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bound("len"); err != nil {
		return 0, err
	}
	return s.doc.Len(), nil
}

// Keys reloads the document and returns its keys in order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bound("keys"); err != nil {
		return nil, err
	}
	if err := s.reload(ctx); err != nil {
		return nil, err
	}
	keys := make([]string, 0, s.doc.Len())
	for p := s.doc.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys, nil
}

// Values reloads the document and returns its values in order.
func (s *Store) Values(ctx context.Context) ([]value.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bound("values"); err != nil {
		return nil, err
	}
	if err := s.reload(ctx); err != nil {
		return nil, err
	}
	values := make([]value.Value, 0, s.doc.Len())
	for p := s.doc.Oldest(); p != nil; p = p.Next() {
		values = append(values, p.Value)
	}
	return values, nil
}

// Document reloads and returns the whole document as a map Value. The
// returned map must not be modified.
func (s *Store) Document(ctx context.Context) (value.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bound("document"); err != nil {
		return value.Value{}, err
	}
	if err := s.reload(ctx); err != nil {
		return value.Value{}, err
	}
	return value.FromMap(s.doc), nil
}
