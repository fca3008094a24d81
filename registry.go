package hotswap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/chenyanchen/hotswap/watch"
)

// DefaultSearchDirs are tried under the application root when a source path
// does not exist as given.
var DefaultSearchDirs = []string{"src", "include"}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Watcher polls source units. Defaults to a watcher rooted at AppRoot,
	// which the registry then owns and closes on Teardown.
	Watcher *watch.Watcher
	// NewBackend creates one backend per session or function slot.
	NewBackend func() (Backend, error)
	AppRoot    string
	SearchDirs []string
	Logger     *slog.Logger
	// OnEvent receives every reload outcome. It runs on the reloading
	// goroutine and must not call back into the reporting session.
	OnEvent func(Event)
}

type session interface {
	name() string
	Lineage() Lineage
	teardown() error
}

// Registry owns one Session per reloadable type, keyed by type identity.
type Registry struct {
	cfg         RegistryConfig
	watcher     *watch.Watcher
	ownsWatcher bool
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[reflect.Type]session
	order    []reflect.Type

	sf singleflight.Group
}

func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.NewBackend == nil {
		return nil, fmt.Errorf("new registry: backend factory is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SearchDirs == nil {
		cfg.SearchDirs = DefaultSearchDirs
	}
	r := &Registry{
		cfg:      cfg,
		watcher:  cfg.Watcher,
		logger:   cfg.Logger.With("component", "hotswap"),
		sessions: make(map[reflect.Type]session),
	}
	if r.watcher == nil {
		r.watcher = watch.New(cfg.AppRoot, watch.WithLogger(cfg.Logger))
		r.ownsWatcher = true
	}
	return r, nil
}

// Watcher returns the watcher every session and slot registers with.
func (r *Registry) Watcher() *watch.Watcher {
	return r.watcher
}

// NewBackend creates a backend with the configured factory.
func (r *Registry) NewBackend() (Backend, error) {
	return r.cfg.NewBackend()
}

// Logger returns the registry logger.
func (r *Registry) Logger() *slog.Logger {
	return r.logger
}

// Reporter returns the operator channel for one reloadable unit.
func (r *Registry) Reporter(kind, unit string) Reporter {
	return Reporter{
		Logger:  r.logger.With("unit", unit),
		OnEvent: r.cfg.OnEvent,
		Kind:    kind,
		Unit:    unit,
	}
}

// ResolveSource returns path if it exists, else the first match under the
// search directories of the application root. Unresolved paths are returned
// unchanged for the watcher's recursive lookup.
func (r *Registry) ResolveSource(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if r.cfg.AppRoot == "" || filepath.IsAbs(path) {
		return path
	}
	for _, dir := range r.cfg.SearchDirs {
		candidate := filepath.Join(r.cfg.AppRoot, dir, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return path
}

// Types returns the names of the initialized types in initialization order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, typ := range r.order {
		out = append(out, r.sessions[typ].name())
	}
	return out
}

// Lineages returns the generation history of every initialized type.
func (r *Registry) Lineages() []Lineage {
	r.mu.RLock()
	sessions := make([]session, 0, len(r.order))
	for _, typ := range r.order {
		sessions = append(sessions, r.sessions[typ])
	}
	r.mu.RUnlock()

	out := make([]Lineage, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Lineage())
	}
	return out
}

// Teardown stops change detection and releases every session, newest first.
// Handles keep their current instance but are never rebound again.
func (r *Registry) Teardown() error {
	if r.ownsWatcher {
		r.watcher.Close()
	}

	r.mu.Lock()
	order := r.order
	sessions := r.sessions
	r.order = nil
	r.sessions = make(map[reflect.Type]session)
	r.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		s := sessions[order[i]]
		if err := s.teardown(); err != nil {
			errs = append(errs, fmt.Errorf("teardown %s: %w", s.name(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Initialize creates the session of T on first use and returns the existing
// one afterwards. The first generation is compiled before it returns.
func Initialize[T any](r *Registry, path string, opts Options) (*Session[T], error) {
	if r == nil {
		return nil, fmt.Errorf("initialize: registry is nil")
	}
	typ := reflect.TypeFor[T]()
	if typ.Name() == "" {
		return nil, fmt.Errorf("initialize %s: reloadable types must be named", typ)
	}
	if s, ok := lookup[T](r, typ); ok {
		return s, nil
	}

	v, err, _ := r.sf.Do(typeKey(typ), func() (any, error) {
		if s, ok := lookup[T](r, typ); ok {
			return s, nil
		}
		s, err := newSession[T](r, typ.Name(), path, opts)
		if err != nil {
			return nil, err
		}
		s.start()

		r.mu.Lock()
		r.sessions[typ] = s
		r.order = append(r.order, typ)
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("initialize %s: %w", typ.Name(), err)
	}
	return v.(*Session[T]), nil
}

// Lookup returns the session of T.
func Lookup[T any](r *Registry) (*Session[T], error) {
	typ := reflect.TypeFor[T]()
	if r != nil {
		if s, ok := lookup[T](r, typ); ok {
			return s, nil
		}
	}
	return nil, MissingSessionError{Type: typeLabel(typ)}
}

// Make creates a handle registered with the session of T.
func Make[T any](r *Registry) (*Handle[T], error) {
	s, err := Lookup[T](r)
	if err != nil {
		return nil, err
	}
	return s.NewHandle(), nil
}

func lookup[T any](r *Registry, typ reflect.Type) (*Session[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[typ]
	if !ok {
		return nil, false
	}
	typed, ok := s.(*Session[T])
	return typed, ok
}

func typeKey(typ reflect.Type) string {
	return typ.PkgPath() + "|" + typ.String()
}

func typeLabel(typ reflect.Type) string {
	if typ.Name() != "" {
		return typ.Name()
	}
	return typ.String()
}
