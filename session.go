package hotswap

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chenyanchen/hotswap/internal/metrics"
	"github.com/chenyanchen/hotswap/watch"
)

// Generation is one successfully compiled version of a type.
type Generation struct {
	Number    int       `json:"number"`
	Namespace string    `json:"namespace"`
	Compiled  time.Time `json:"compiled"`
}

// Session recompiles one type on every change of its source unit and
// repoints the handles registered with it.
//
// A session drives its backend under one mutex, so registration from the
// host goroutine and reloads on the poll goroutine never overlap.
type Session[T any] struct {
	registry *Registry
	typeName string
	path     string
	opts     Options
	logger   *slog.Logger
	report   Reporter

	mu           sync.Mutex
	backend      Backend
	baseNS       string
	baseDeclared bool
	generations  []Generation
	handles      map[string]*Handle[T]
	order        []string
	closed       bool
}

func newSession[T any](r *Registry, typeName string, path string, opts Options) (*Session[T], error) {
	resolved := r.ResolveSource(path)
	backend, err := r.NewBackend()
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	if err := ApplyOptions(backend, resolved, opts); err != nil {
		return nil, err
	}
	return &Session[T]{
		registry: r,
		typeName: typeName,
		path:     resolved,
		opts:     opts,
		logger:   r.logger.With("type", typeName),
		report:   r.Reporter(metrics.KindType, typeName),
		backend:  backend,
		baseNS:   BaseNamespace(typeName),
		handles:  make(map[string]*Handle[T]),
	}, nil
}

// start declares the base generation and registers with the watcher, which
// compiles the first generation before returning. A base that cannot be
// declared yet is retried and reported by the first reload.
func (s *Session[T]) start() {
	unit := s.registry.watcher.ResolveUnit(s.path)
	s.mu.Lock()
	if header, impl, err := watch.Read(unit); err == nil {
		if err := s.declareBase(header, impl); err != nil {
			s.logger.Debug("base generation deferred", "error", err)
		}
	}
	s.mu.Unlock()

	s.registry.watcher.Watch(s.path, s.reload)
}

func (s *Session[T]) declareBase(header, impl string) error {
	code := Preprocess(header, impl).Wrap(s.baseNS)
	if err := s.backend.Declare(code); err != nil {
		return CompileError{Unit: s.typeName, Namespace: s.baseNS, Err: err}
	}
	s.baseDeclared = true
	s.logger.Debug("base generation declared", "namespace", s.baseNS)
	return nil
}

func (s *Session[T]) reload(u watch.Unit) {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	gen, err := s.compile(u)
	if err != nil {
		s.report.CompileFailed(err, started)
		return
	}
	handles := make([]*Handle[T], 0, len(s.order))
	for _, id := range s.order {
		handles = append(handles, s.handles[id])
	}
	if err := s.publish(gen, handles); err != nil {
		s.report.CompileFailed(CompileError{Unit: s.typeName, Namespace: gen.Namespace, Err: err}, started)
		return
	}
	s.generations = append(s.generations, gen)
	s.report.Reloaded(gen.Number, gen.Namespace, started)
}

// compile declares a new generation and checks that it satisfies T. It
// never touches the handle table.
func (s *Session[T]) compile(u watch.Unit) (Generation, error) {
	header, impl, err := watch.Read(u)
	if err != nil {
		return Generation{}, CompileError{Unit: s.typeName, Err: NotFoundError{Path: u.Path, Err: err}}
	}
	if !s.baseDeclared {
		if err := s.declareBase(header, impl); err != nil {
			return Generation{}, err
		}
	}

	ns := s.backend.UniqueName(strings.ToLower(s.typeName))
	code, err := Derive(Preprocess(header, impl), s.typeName, ns)
	if err != nil {
		return Generation{}, CompileError{Unit: s.typeName, Namespace: ns, Err: err}
	}
	if err := s.backend.Declare(code); err != nil {
		return Generation{}, CompileError{Unit: s.typeName, Namespace: ns, Err: err}
	}
	if err := s.check(ns); err != nil {
		return Generation{}, CompileError{Unit: s.typeName, Namespace: ns, Err: err}
	}
	return Generation{
		Number:    len(s.generations) + 1,
		Namespace: ns,
		Compiled:  time.Now(),
	}, nil
}

// check builds one throwaway instance of namespace and asserts it is a T.
func (s *Session[T]) check(ns string) error {
	name := ns + "_check"
	if err := s.backend.DeclareGlobal(name, s.opts.Interface, s.constructorExpr(ns)); err != nil {
		return fmt.Errorf("construct check instance: %w", err)
	}
	v, _ := s.backend.Global(name)
	if err := s.backend.AssignGlobal(name, "nil"); err != nil {
		s.logger.Warn("release check instance", "namespace", ns, "error", err)
	}
	if _, ok := v.(T); !ok {
		return fmt.Errorf("%s.%s (%T) does not implement %s", ns, s.typeName, v, reflect.TypeFor[T]())
	}
	return nil
}

func (s *Session[T]) constructorExpr(ns string) string {
	return ns + "." + s.opts.constructor(s.typeName) + "()"
}

// publish builds one instance of gen per handle and only then repoints the
// handles, so either every handle moves to gen or none does.
func (s *Session[T]) publish(gen Generation, handles []*Handle[T]) error {
	staged := make([]T, len(handles))
	for i, h := range handles {
		inst, err := s.stage(gen, h)
		if err != nil {
			for _, prev := range handles[:i+1] {
				s.release(stageName(gen, prev.id))
			}
			return fmt.Errorf("instantiate for %s: %w", h.id, err)
		}
		staged[i] = inst
	}
	for i, h := range handles {
		s.bind(h, staged[i], gen)
	}
	return nil
}

func stageName(gen Generation, id string) string {
	return gen.Namespace + "_" + id
}

// stage constructs an instance of gen for h in a scratch global.
func (s *Session[T]) stage(gen Generation, h *Handle[T]) (T, error) {
	var zero T
	name := stageName(gen, h.id)
	if err := s.backend.DeclareGlobal(name, s.opts.Interface, s.constructorExpr(gen.Namespace)); err != nil {
		return zero, err
	}
	v, _ := s.backend.Global(name)
	inst, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%T does not implement %s", v, reflect.TypeFor[T]())
	}
	return inst, nil
}

// bind moves the staged instance into the global of h's identity, carrying
// state over from h's current instance, and repoints h.
func (s *Session[T]) bind(h *Handle[T], inst T, gen Generation) {
	var state *bytes.Buffer
	if cur := h.cur.Load(); cur != nil {
		buf, saved, err := SaveState(cur.value)
		if err != nil {
			s.report.StateTransferFailed(StateTransferError{Unit: s.typeName, Handle: h.id, Err: fmt.Errorf("save: %w", err)}, h.id)
		} else if saved {
			state = buf
		}
	}

	staged := stageName(gen, h.id)
	var err error
	if _, ok := s.backend.Global(h.id); ok {
		err = s.backend.AssignGlobal(h.id, staged)
	} else {
		err = s.backend.DeclareGlobal(h.id, s.opts.Interface, staged)
	}
	if err != nil {
		s.logger.Warn("assign instance global", "handle", h.id, "namespace", gen.Namespace, "error", err)
	}
	s.release(staged)

	// State is restored before the instance becomes visible.
	if err := LoadState(inst, state); err != nil {
		s.report.StateTransferFailed(StateTransferError{Unit: s.typeName, Handle: h.id, Err: err}, h.id)
	}
	h.rebind(inst, gen.Number)
}

// NewHandle creates a handle with a fresh identity. Once a generation
// exists the handle is bound to a new instance of it immediately.
func (s *Session[T]) NewHandle() *Handle[T] {
	h := newHandle(s)
	s.register(h, true)
	return h
}

func (s *Session[T]) register(h *Handle[T], bindLatest bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handles[h.id] = h
	s.order = append(s.order, h.id)
	metrics.SetLiveHandles(s.typeName, len(s.order))
	if bindLatest && len(s.generations) > 0 {
		gen := s.generations[len(s.generations)-1]
		if err := s.publish(gen, []*Handle[T]{h}); err != nil {
			s.logger.Error("bind new handle", "handle", h.id, "namespace", gen.Namespace, "error", err)
		}
	}
}

// unregister removes h unless its identity has been taken over by another
// handle. release frees the backend global of the identity.
func (s *Session[T]) unregister(h *Handle[T], release bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.handles[h.id]; !ok || cur != h {
		return
	}
	delete(s.handles, h.id)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == h.id })
	metrics.SetLiveHandles(s.typeName, len(s.order))
	if release {
		s.release(h.id)
	}
}

// adopt hands the identity of src to dest, keeping its position.
func (s *Session[T]) adopt(src, dest *Handle[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.handles[src.id]; ok && cur == src {
		s.handles[src.id] = dest
	}
}

func (s *Session[T]) release(id string) {
	if _, ok := s.backend.Global(id); !ok {
		return
	}
	if err := s.backend.AssignGlobal(id, "nil"); err != nil {
		s.logger.Warn("release instance", "handle", id, "error", err)
	}
}

func (s *Session[T]) teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, id := range s.order {
		if _, ok := s.backend.Global(id); !ok {
			continue
		}
		if err := s.backend.AssignGlobal(id, "nil"); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", id, err))
		}
	}
	s.handles = make(map[string]*Handle[T])
	s.order = nil
	metrics.SetLiveHandles(s.typeName, 0)
	return errors.Join(errs...)
}

func (s *Session[T]) name() string {
	return s.typeName
}

// Path returns the resolved source path.
func (s *Session[T]) Path() string {
	return s.path
}

// Generation returns the number of the live generation, 0 before the first
// successful compile.
func (s *Session[T]) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.generations)
}

// Namespace returns the namespace of the live generation, empty before the
// first successful compile.
func (s *Session[T]) Namespace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.generations) == 0 {
		return ""
	}
	return s.generations[len(s.generations)-1].Namespace
}

// Generations returns the generation history, oldest first.
func (s *Session[T]) Generations() []Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.generations)
}

// Handles returns the identities of the registered handles in registration
// order.
func (s *Session[T]) Handles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}
