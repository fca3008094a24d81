package hotswap

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenyanchen/hotswap/internal/metrics"
	"github.com/chenyanchen/hotswap/watch"
)

// Func is a standalone function recompiled on every change of its source
// unit. State is never migrated between versions.
type Func[F any] struct {
	registry *Registry
	name     string
	path     string
	opts     Options
	logger   *slog.Logger
	report   Reporter

	startOnce sync.Once
	mu        sync.Mutex
	backend   Backend
	closed    bool
	fn        atomic.Pointer[F]
	gen       atomic.Int64
}

// NewFunc declares a function slot for the function name defined in path.
// Nothing is compiled until the first Get or Bound.
func NewFunc[F any](r *Registry, name string, path string, opts Options) *Func[F] {
	return &Func[F]{
		registry: r,
		name:     name,
		path:     r.ResolveSource(path),
		opts:     opts,
		logger:   r.logger.With("function", name),
		report:   r.Reporter(metrics.KindFunction, name),
	}
}

// Get returns the latest successfully compiled version, or ErrUninitialized.
func (f *Func[F]) Get() (F, error) {
	f.start()
	if p := f.fn.Load(); p != nil {
		return *p, nil
	}
	var zero F
	return zero, ErrUninitialized
}

// Bound reports whether a version is available.
func (f *Func[F]) Bound() bool {
	f.start()
	return f.fn.Load() != nil
}

// Generation returns the number of successful compilations.
func (f *Func[F]) Generation() int {
	return int(f.gen.Load())
}

// Name returns the function name as written in source.
func (f *Func[F]) Name() string {
	return f.name
}

// Close stops recompiling the slot. The last version stays callable.
func (f *Func[F]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.backend = nil
}

func (f *Func[F]) start() {
	f.startOnce.Do(func() {
		backend, err := f.registry.NewBackend()
		if err == nil {
			err = ApplyOptions(backend, f.path, f.opts)
		}
		if err != nil {
			f.report.CompileFailed(CompileError{Unit: f.name, Err: fmt.Errorf("create backend: %w", err)}, time.Now())
			return
		}
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return
		}
		f.backend = backend
		f.mu.Unlock()
		f.registry.watcher.Watch(f.path, f.reload)
	})
}

func (f *Func[F]) reload(u watch.Unit) {
	started := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	fn, ns, err := f.compile(u)
	if err != nil {
		f.report.CompileFailed(err, started)
		return
	}
	f.fn.Store(&fn)
	n := f.gen.Add(1)
	f.report.Reloaded(int(n), ns, started)
}

func (f *Func[F]) compile(u watch.Unit) (F, string, error) {
	var zero F
	header, impl, err := watch.Read(u)
	if err != nil {
		return zero, "", CompileError{Unit: f.name, Err: NotFoundError{Path: u.Path, Err: err}}
	}

	unique := f.backend.UniqueName(f.name)
	ns := strings.ToLower(unique)
	src := Preprocess(header, impl)
	src.Body = RenameIdent(src.Body, f.name, unique)

	v, err := f.backend.CompileFunction(unique, src.Wrap(ns))
	if err != nil {
		return zero, ns, CompileError{Unit: f.name, Namespace: ns, Err: err}
	}
	fn, ok := v.(F)
	if !ok {
		return zero, ns, CompileError{
			Unit:      f.name,
			Namespace: ns,
			Err:       fmt.Errorf("%s has type %T, want %s", f.name, v, reflect.TypeFor[F]()),
		}
	}
	return fn, ns, nil
}
