// Package monitor reports when a file has stopped being written to.
//
// A Monitor watches one path. Each create or write event records the file's
// modification time and (re)arms a quiet timer. When the timer fires the
// file is checked again: an unchanged modification time means the writer is
// done and a settled Event is delivered, a changed one re-arms the timer,
// and a vanished file silently returns to idle.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultQuietPeriod is the inactivity required before a file is settled.
const DefaultQuietPeriod = time.Second

// State is the monitor's position in its state machine.
type State int

const (
	// Idle means no recent activity.
	Idle State = iota
	// Watching means a write was seen and the quiet timer is armed.
	Watching
)

func (s State) String() string {
	if s == Watching {
		return "watching"
	}
	return "idle"
}

// Event is delivered when the file settled after a write.
type Event struct {
	Path    string
	ModTime time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithQuietPeriod overrides DefaultQuietPeriod.
func WithQuietPeriod(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.quiet = d
		}
	}
}

// WithNotify registers the function called on each settled Event. It runs
// on a timer goroutine and must not call Stop.
func WithNotify(fn func(Event)) Option {
	return func(m *Monitor) { m.notify = fn }
}

// Monitor watches a single file for settled writes.
type Monitor struct {
	dir    string
	path   string
	quiet  time.Duration
	notify func(Event)

	mu      sync.Mutex
	state   State
	modTime time.Time
	timer   *time.Timer
	gen     uint64
	started bool
	stopped bool

	w         *fsnotify.Watcher
	closeOnce sync.Once
	done      chan struct{}
	timers    sync.WaitGroup
}

// New returns a Monitor for dir/name. Start must be called to begin
// watching.
func New(dir, name string, opts ...Option) *Monitor {
	m := &Monitor{
		dir:   filepath.Clean(dir),
		path:  filepath.Join(dir, name),
		quiet: DefaultQuietPeriod,
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Path returns the watched file.
func (m *Monitor) Path() string { return m.path }

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start creates the directory if needed and begins watching. The parent
// directory is watched too so that a removed and recreated directory keeps
// being monitored. The monitor stops by itself when ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return errors.New("monitor is stopped")
	}
	if m.started {
		return nil
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for user data directories
		return fmt.Errorf("failed to create watched directory: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(m.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", m.dir, err)
	}
	// The parent reports the directory being recreated after a removal.
	if parent := filepath.Dir(m.dir); parent != m.dir {
		if err := w.Add(parent); err != nil {
			slog.DebugContext(ctx, "Cannot watch parent directory", "path", parent, "err", err)
		}
	}
	m.w = w
	m.started = true
	go m.loop(ctx)
	slog.DebugContext(ctx, "Monitoring file", "path", m.path)
	return nil
}

// Stop ends monitoring. It is idempotent and no Event is delivered once it
// returns.
func (m *Monitor) Stop() {
	m.halt()
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		m.closeWatcher()
		<-m.done
	}
	m.timers.Wait()
}

func (m *Monitor) halt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.state = Idle
	m.disarm()
}

func (m *Monitor) closeWatcher() {
	m.closeOnce.Do(func() {
		_ = m.w.Close()
	})
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.halt()
			m.closeWatcher()
			return
		case ev, ok := <-m.w.Events:
			if !ok {
				return
			}
			m.handle(ctx, ev)
		case err, ok := <-m.w.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "Error watching file", "path", m.path, "err", err)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)
	if name == m.dir {
		if ev.Has(fsnotify.Create) {
			m.rewatch(ctx)
		}
		return
	}
	if name != m.path {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	m.touch(ctx)
}

// rewatch watches the directory again after it was removed and recreated.
// The file may already have been written before the watch was in place.
func (m *Monitor) rewatch(ctx context.Context) {
	if err := m.w.Add(m.dir); err != nil {
		slog.WarnContext(ctx, "Failed to watch recreated directory", "path", m.dir, "err", err)
		return
	}
	slog.DebugContext(ctx, "Watching recreated directory", "path", m.dir)
	m.touch(ctx)
}

// touch records the file's modification time and arms the quiet timer.
func (m *Monitor) touch(ctx context.Context) {
	st, err := os.Stat(m.path)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.modTime = st.ModTime()
	m.state = Watching
	m.arm(ctx)
}

// arm (re)starts the quiet timer. m.mu must be held.
func (m *Monitor) arm(ctx context.Context) {
	m.disarm()
	m.gen++
	gen := m.gen
	m.timers.Add(1)
	m.timer = time.AfterFunc(m.quiet, func() {
		defer m.timers.Done()
		m.fire(ctx, gen)
	})
}

// disarm stops the pending timer, if any. m.mu must be held.
func (m *Monitor) disarm() {
	if m.timer != nil {
		if m.timer.Stop() {
			m.timers.Done()
		}
		m.timer = nil
	}
}

func (m *Monitor) fire(ctx context.Context, gen uint64) {
	ev, ok := m.check(ctx, gen)
	if !ok {
		return
	}
	slog.DebugContext(ctx, "File settled", "path", ev.Path)
	// Stop waits for this goroutine, so the callback cannot outlive it.
	if m.notify != nil {
		m.notify(ev)
	}
}

// check runs the timer transition and reports whether the file settled.
func (m *Monitor) check(ctx context.Context, gen uint64) (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || gen != m.gen {
		return Event{}, false
	}
	m.timer = nil
	st, err := os.Stat(m.path)
	if err != nil {
		m.state = Idle
		if !errors.Is(err, os.ErrNotExist) {
			slog.WarnContext(ctx, "Failed to check file activity", "path", m.path, "err", err)
		}
		return Event{}, false
	}
	if !st.ModTime().Equal(m.modTime) {
		m.modTime = st.ModTime()
		m.arm(ctx)
		return Event{}, false
	}
	m.state = Idle
	return Event{Path: m.path, ModTime: m.modTime}, true
}
