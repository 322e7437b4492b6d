package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/maruel/filekv/internal/cipher"
	"github.com/maruel/filekv/internal/errs"
	"github.com/maruel/ksid"
)

const (
	tempPrefix = "."
	tempSuffix = ".tmp"
)

// Result describes the outcome of an asynchronous save.
type Result struct {
	// ID identifies the save in logs.
	ID   ksid.ID
	Path string
	// Bytes is the number of bytes written.
	Bytes int
	// Skipped is set when the save was dropped because the file was locked.
	Skipped bool
	// Err is the failure, already logged.
	Err error
}

// Pending is the handle of an in-flight save.
type Pending struct {
	done   chan struct{}
	once   sync.Once
	result Result
}

func newPending(id ksid.ID, path string) *Pending {
	return &Pending{done: make(chan struct{}), result: Result{ID: id, Path: path}}
}

func (p *Pending) finish(r Result) {
	p.once.Do(func() {
		p.result = r
		close(p.done)
	})
}

// Done is closed once the save completed, was skipped or failed.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the save finishes or ctx is done.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the outcome. It must only be called after Done is closed.
func (p *Pending) Result() Result {
	<-p.done
	return p.result
}

// Save serializes v and writes it in the background.
//
// v is encoded before Save returns so the caller may keep mutating it. The
// lock probe runs next; if the file is held by another process the
// save is dropped and the Result is marked Skipped. Failures are logged
// and reported in the Result, never returned. Once the probe has passed
// the write is not interruptible.
func (f *FileStore) Save(ctx context.Context, v any, encrypted bool) *Pending {
	return f.start(ctx, func() ([]byte, error) {
		text, err := f.serializer.Marshal(v)
		if err != nil {
			return nil, err
		}
		if !encrypted {
			return text, nil
		}
		if f.key == "" {
			return nil, errs.New(errs.CodeCipherInit, "encryption key is empty").WithOp("save").WithPath(f.Path())
		}
		return cipher.Seal(f.key, text)
	})
}

// SaveRaw writes text verbatim in the background, with the same lock
// discipline as Save.
func (f *FileStore) SaveRaw(ctx context.Context, text string) *Pending {
	return f.start(ctx, func() ([]byte, error) {
		return []byte(text), nil
	})
}

func (f *FileStore) start(ctx context.Context, encode func() ([]byte, error)) *Pending {
	p := newPending(ksid.NewID(), f.Path())
	b, encErr := encode()
	f.mu.Lock()
	prev := f.last
	f.last = p
	f.mu.Unlock()
	go func() {
		// Saves from this process land in submission order.
		if prev != nil {
			<-prev.done
		}
		r := p.result
		if encErr != nil {
			slog.ErrorContext(ctx, "Failed to encode document", "path", r.Path, "id", r.ID, "err", encErr)
			r.Err = encErr
			p.finish(r)
			return
		}
		if f.IsLocked(ctx, f.retries, f.delay) {
			slog.WarnContext(ctx, "File is locked, dropping save", "path", r.Path, "id", r.ID)
			r.Skipped = true
			p.finish(r)
			return
		}
		err := f.write(b)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to save document", "path", r.Path, "id", r.ID, "err", err)
			r.Err = err
		} else {
			r.Bytes = len(b)
			slog.DebugContext(ctx, "Saved document", "path", r.Path, "id", r.ID, "bytes", r.Bytes)
		}
		p.finish(r)
	}()
	return p
}

// write replaces the file with b through a temporary file renamed into
// place, so readers see either the previous or the new contents.
//
// In Exclusive mode the current file is held with an exclusive lock until
// the rename is done.
func (f *FileStore) write(b []byte) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for user data directories
		return fmt.Errorf("failed to create directory: %w", err)
	}
	p := f.Path()
	if f.lockMode == Exclusive {
		cur, err := os.OpenFile(p, os.O_RDWR, 0) //nolint:gosec // G304: path is owned by the store
		switch {
		case err == nil:
			defer cur.Close()
			if err := lockFile(cur, true); err != nil {
				return lockError("save", p, err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("failed to open %s: %w", p, err)
		}
	}
	tmp, err := os.CreateTemp(f.dir, tempPrefix+f.name+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		return errors.Join(fmt.Errorf("failed to write %s: %w", tmpPath, err), tmp.Close(), os.Remove(tmpPath))
	}
	if err := tmp.Chmod(0o644); err != nil { //nolint:gosec // G302: documents are user readable
		return errors.Join(fmt.Errorf("failed to chmod %s: %w", tmpPath, err), tmp.Close(), os.Remove(tmpPath))
	}
	if err := tmp.Sync(); err != nil {
		return errors.Join(fmt.Errorf("failed to sync %s: %w", tmpPath, err), tmp.Close(), os.Remove(tmpPath))
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close %s: %w", tmpPath, err), os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return errors.Join(fmt.Errorf("failed to rename %s: %w", tmpPath, err), os.Remove(tmpPath))
	}
	return nil
}

// isTempName reports whether name is an in-progress write.
func isTempName(name string) bool {
	return strings.HasPrefix(name, tempPrefix) && strings.HasSuffix(name, tempSuffix)
}

// Flush waits until every save submitted so far has finished.
func (f *FileStore) Flush(ctx context.Context) error {
	f.mu.Lock()
	p := f.last
	f.mu.Unlock()
	if p == nil {
		return nil
	}
	_, err := p.Wait(ctx)
	return err
}
