package filestore

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/maruel/filekv/internal/errs"
	"golang.org/x/time/rate"
)

type probeResult int

const (
	probeFree probeResult = iota
	probeBusy
	probeDenied
	probeFailed
)

// IsLocked reports whether another process holds the file.
//
// Up to retries attempts are made, spaced by delay, each trying to take a
// non-blocking exclusive lock. It returns false as soon as one attempt
// succeeds or when the file does not exist, true when every attempt hits a
// conflicting lock, and true immediately when access is denied. Other
// failures, such as the path being a directory, are logged and reported as
// not locked. The probe
// runs on its own goroutine; cancelling ctx abandons it and reports true.
func (f *FileStore) IsLocked(ctx context.Context, retries int, delay time.Duration) bool {
	if retries < 1 {
		retries = 1
	}
	done := make(chan bool, 1)
	go func() {
		done <- f.probe(ctx, retries, delay)
	}()
	select {
	case locked := <-done:
		return locked
	case <-ctx.Done():
		return true
	}
}

func (f *FileStore) probe(ctx context.Context, retries int, delay time.Duration) bool {
	lim := rate.NewLimiter(rate.Every(delay), 1)
	if delay <= 0 {
		lim = rate.NewLimiter(rate.Inf, 1)
	}
	for i := range retries {
		if err := lim.Wait(ctx); err != nil {
			return true
		}
		switch r, err := tryExclusive(f.Path()); r {
		case probeFree:
			return false
		case probeDenied:
			slog.WarnContext(ctx, "Lock probe denied", "path", f.Path(), "err", err)
			return true
		case probeFailed:
			// Not a lock conflict; the caller's own I/O reports the error.
			slog.WarnContext(ctx, "Lock probe failed", "path", f.Path(), "err", err)
			return false
		default:
			slog.DebugContext(ctx, "File is locked", "path", f.Path(), "attempt", i+1, "err", err)
		}
	}
	return true
}

// tryExclusive opens p and attempts to take an exclusive lock, releasing
// it immediately.
func tryExclusive(p string) (probeResult, error) {
	fh, err := os.OpenFile(p, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return probeFree, nil
		}
		if errors.Is(err, fs.ErrPermission) {
			return probeDenied, err
		}
		return probeFailed, err
	}
	defer fh.Close()
	if err := lockFile(fh, true); err != nil {
		if isSharingViolation(err) {
			return probeBusy, err
		}
		return probeFailed, err
	}
	unlockFile(fh)
	return probeFree, nil
}

func lockError(op, path string, err error) error {
	if isSharingViolation(err) {
		return errs.New(errs.CodeLocked, "file is locked").WithOp(op).WithPath(path).Wrap(err)
	}
	return errs.New(errs.CodeLocked, "cannot lock file").WithOp(op).WithPath(path).Wrap(err)
}
