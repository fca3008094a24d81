package watch

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// PollInterval is the fixed period between two modification checks.
const PollInterval = 500 * time.Millisecond

const (
	headerExt  = ".go"
	implSuffix = "_impl.go"
)

// Unit describes one watched header/implementation pair.
type Unit struct {
	Path      string // logical path passed to Watch
	Header    string
	Impl      string
	HasHeader bool
	HasImpl   bool
}

// Stem returns the unit's base name without the file extensions.
func (u Unit) Stem() string {
	if u.Header != "" {
		return stem(u.Header)
	}
	return stem(u.Path)
}

// Callback is notified with the unit that changed.
type Callback func(u Unit)

type watchedUnit struct {
	unit       Unit
	headerTime time.Time
	implTime   time.Time
	callbacks  []Callback
}

// Option configures a Watcher.
type Option func(*Watcher)

// Manual disables the background poll goroutine; the caller drives Poll.
func Manual() Option {
	return func(w *Watcher) {
		w.manual = true
	}
}

// WithLogger sets the logger used for registration and change reports.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher tracks units and polls them for changes on one goroutine.
type Watcher struct {
	root   string
	manual bool
	logger *slog.Logger

	mu      sync.Mutex
	units   map[string]*watchedUnit
	order   []*watchedUnit
	running bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// New returns a watcher resolving relative paths under root.
func New(root string, opts ...Option) *Watcher {
	w := &Watcher{
		root:   root,
		logger: slog.Default(),
		units:  make(map[string]*watchedUnit),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "watch")
	return w
}

// Root returns the application root used for recursive resolution.
func (w *Watcher) Root() string {
	return w.root
}

// Watch registers cb for the unit behind path and invokes it once before
// returning. Paths resolving to the same files share one unit. The first
// registration starts the poll goroutine unless the watcher is manual.
// Watch may be called from inside a callback.
func (w *Watcher) Watch(path string, cb Callback) Unit {
	resolved := w.ResolveUnit(path)
	key := unitKey(resolved)

	w.mu.Lock()
	wu, ok := w.units[key]
	if !ok {
		wu = newWatchedUnit(path, resolved)
		w.units[key] = wu
		w.order = append(w.order, wu)
		w.logger.Debug("unit registered", "path", path,
			"header", wu.unit.Header, "has_header", wu.unit.HasHeader, "has_impl", wu.unit.HasImpl)
	}
	wu.callbacks = append(wu.callbacks, cb)
	unit := wu.unit
	if !w.manual && !w.running && !w.closed {
		w.running = true
		w.stop = make(chan struct{})
		w.done = make(chan struct{})
		go w.loop(w.stop, w.done)
	}
	w.mu.Unlock()

	w.invoke(unit, cb)
	return unit
}

// unitKey identifies a unit by its resolved header path, or by the logical
// path when nothing was found.
func unitKey(u Unit) string {
	if u.Header != "" {
		return u.Header
	}
	return u.Path
}

// Poll runs one modification check and fires callbacks of changed units on
// the calling goroutine. Callbacks run after the watcher lock is released.
func (w *Watcher) Poll() {
	type firing struct {
		unit      Unit
		callbacks []Callback
	}

	var fire []firing
	w.mu.Lock()
	for _, wu := range w.order {
		if w.changed(wu) {
			fire = append(fire, firing{unit: wu.unit, callbacks: slices.Clone(wu.callbacks)})
		}
	}
	w.mu.Unlock()

	for _, f := range fire {
		w.logger.Info("source changed", "path", f.unit.Path)
		for _, cb := range f.callbacks {
			w.invoke(f.unit, cb)
		}
	}
}

// Units returns a snapshot of the tracked units in registration order.
func (w *Watcher) Units() []Unit {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Unit, 0, len(w.order))
	for _, wu := range w.order {
		out = append(out, wu.unit)
	}
	return out
}

// Close stops the poll goroutine, waits for it and forgets every unit.
// It must not be called from inside a callback.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	running, stop, done := w.running, w.stop, w.done
	w.running = false
	w.mu.Unlock()

	if running {
		close(stop)
		<-done
	}

	w.mu.Lock()
	w.units = make(map[string]*watchedUnit)
	w.order = nil
	w.mu.Unlock()
	w.logger.Debug("watcher closed")
}

// Resolve finds path as given, else by file name anywhere under the root.
func (w *Watcher) Resolve(path string) (string, bool) {
	if isFile(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return path, true
		}
		return abs, true
	}
	if w.root == "" {
		return "", false
	}

	name := filepath.Base(path)
	var found string
	_ = filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != w.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == name {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if found == "" {
		return "", false
	}
	if abs, err := filepath.Abs(found); err == nil {
		found = abs
	}
	return found, true
}

// ResolveUnit resolves path and derives the header/implementation pair
// sharing its stem. Neither file existing yields a unit with no files.
func (w *Watcher) ResolveUnit(path string) Unit {
	unit := Unit{Path: path}
	resolved, ok := w.Resolve(path)
	if !ok {
		return unit
	}
	dir := filepath.Dir(resolved)
	s := stem(resolved)
	unit.Header = filepath.Join(dir, s+headerExt)
	unit.Impl = filepath.Join(dir, s+implSuffix)
	unit.HasHeader = isFile(unit.Header)
	unit.HasImpl = isFile(unit.Impl)
	return unit
}

func newWatchedUnit(path string, unit Unit) *watchedUnit {
	unit.Path = path
	wu := &watchedUnit{unit: unit}
	if unit.HasHeader {
		wu.headerTime, _ = modTime(unit.Header)
	}
	if unit.HasImpl {
		wu.implTime, _ = modTime(unit.Impl)
	}
	return wu
}

// changed advances both stored times so a unit reports once per tick.
func (w *Watcher) changed(wu *watchedUnit) bool {
	changed := false
	if wu.unit.HasHeader {
		if t, err := modTime(wu.unit.Header); err != nil {
			w.logger.Warn("stat header", "path", wu.unit.Header, "error", err)
		} else if t.After(wu.headerTime) {
			wu.headerTime = t
			changed = true
		}
	}
	if wu.unit.HasImpl {
		if t, err := modTime(wu.unit.Impl); err != nil {
			w.logger.Warn("stat implementation", "path", wu.unit.Impl, "error", err)
		} else if t.After(wu.implTime) {
			wu.implTime = t
			changed = true
		}
	}
	return changed
}

func (w *Watcher) invoke(unit Unit, cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("watch callback panicked", "path", unit.Path, "panic", r)
		}
	}()
	cb(unit)
}

func (w *Watcher) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.Poll()
		}
	}
}

func modTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func stem(path string) string {
	base := filepath.Base(path)
	if s, ok := strings.CutSuffix(base, implSuffix); ok {
		return s
	}
	return strings.TrimSuffix(base, headerExt)
}

// ErrNoSource reports a unit with neither a header nor an implementation.
var ErrNoSource = errors.New("watch: no source file for unit")

// Read returns the header and implementation contents of u. A missing
// implementation yields an empty string.
func Read(u Unit) (header string, impl string, err error) {
	if !u.HasHeader && !u.HasImpl {
		return "", "", ErrNoSource
	}
	if u.HasHeader {
		b, err := os.ReadFile(u.Header)
		if err != nil {
			return "", "", err
		}
		header = string(b)
	}
	if u.HasImpl {
		b, err := os.ReadFile(u.Impl)
		if err != nil {
			return "", "", err
		}
		impl = string(b)
	}
	return header, impl, nil
}
