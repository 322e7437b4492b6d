//go:build unix

package filestore

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/maruel/filekv/internal/errs"
	"golang.org/x/sys/unix"
)

// holdLock takes an exclusive lock on p through a separate open file, as
// another process would.
func holdLock(t *testing.T, p string) func() {
	t.Helper()
	fh, err := os.OpenFile(p, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := unix.Flock(int(fh.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		t.Fatal(err)
	}
	released := false
	release := func() {
		if !released {
			released = true
			_ = fh.Close()
		}
	}
	t.Cleanup(release)
	return release
}

func TestLocked(t *testing.T) {
	t.Run("probe", func(t *testing.T) {
		f := testStore(t)
		mustSave(t, f.SaveRaw(t.Context(), "original"))
		release := holdLock(t, f.Path())
		start := time.Now()
		if !f.IsLocked(t.Context(), 3, 20*time.Millisecond) {
			t.Fatal("IsLocked() = false while locked")
		}
		if d := time.Since(start); d < 30*time.Millisecond {
			t.Errorf("IsLocked() returned after %s, want retries", d)
		}
		release()
		if f.IsLocked(t.Context(), 3, 20*time.Millisecond) {
			t.Error("IsLocked() = true after release")
		}
	})

	t.Run("save is dropped", func(t *testing.T) {
		f := testStore(t)
		mustSave(t, f.SaveRaw(t.Context(), "original"))
		release := holdLock(t, f.Path())
		r := f.Save(t.Context(), profile{Name: "new"}, false).Result()
		if !r.Skipped || r.Err != nil {
			t.Errorf("Result = %+v, want Skipped", r)
		}
		release()
		if raw, _ := f.LoadRaw(); raw != "original" {
			t.Errorf("LoadRaw() = %q, want original", raw)
		}
	})

	t.Run("exclusive read conflicts", func(t *testing.T) {
		f := testStore(t)
		mustSave(t, f.SaveRaw(t.Context(), "x"))
		holdLock(t, f.Path())
		if _, err := f.LoadRaw(); !errors.Is(err, errs.ErrLocked) {
			t.Errorf("LoadRaw() error = %v, want ErrLocked", err)
		}
		shared := New(f.Dir(), f.Name(), WithLockMode(Shared))
		if raw, err := shared.LoadRaw(); err != nil || raw != "x" {
			t.Errorf("shared LoadRaw() = %q, %v", raw, err)
		}
	})

	t.Run("permission denied", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root bypasses file permissions")
		}
		f := testStore(t)
		mustSave(t, f.SaveRaw(t.Context(), "x"))
		if err := os.Chmod(f.Path(), 0); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = os.Chmod(f.Path(), 0o644) })
		start := time.Now()
		if !f.IsLocked(t.Context(), 5, 100*time.Millisecond) {
			t.Error("IsLocked() = false on permission error")
		}
		if d := time.Since(start); d > 90*time.Millisecond {
			t.Errorf("IsLocked() took %s, want immediate", d)
		}
		if _, err := f.LoadRaw(); !errors.Is(err, errs.ErrPermission) {
			t.Errorf("LoadRaw() error = %v, want ErrPermission", err)
		}
	})
}
