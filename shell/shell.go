// Package shell hosts one reloadable application object and forwards the
// host's lifecycle calls to whichever generation is live.
package shell

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chenyanchen/hotswap"
	"github.com/chenyanchen/hotswap/internal/metrics"
	"github.com/chenyanchen/hotswap/watch"
)

const (
	DefaultHostBase      = "app.App"
	DefaultForwardBase   = "shell.Base"
	DefaultForwardImport = `"github.com/chenyanchen/hotswap/shell"`
)

// Config configures a Shell.
type Config struct {
	Registry *hotswap.Registry
	Host     Host
	Path     string
	// TypeName defaults to the stem of Path.
	TypeName string
	Options  hotswap.Options
	// HostBase is the embedded base type application sources declare; it is
	// rewritten to ForwardBase, imported through ForwardImport.
	HostBase      string
	ForwardBase   string
	ForwardImport string
	// TransferState saves the outgoing delegate and loads the incoming one
	// when the delegate is hotswap.Stateful.
	TransferState bool
}

func (c *Config) setDefaults() {
	if c.TypeName == "" {
		base := filepath.Base(c.Path)
		c.TypeName = strings.TrimSuffix(strings.TrimSuffix(base, ".go"), "_impl")
	}
	if c.HostBase == "" {
		c.HostBase = DefaultHostBase
	}
	if c.ForwardBase == "" {
		c.ForwardBase = DefaultForwardBase
	}
	if c.ForwardImport == "" {
		c.ForwardImport = DefaultForwardImport
	}
}

// Shell forwards lifecycle calls to the live application delegate and
// replaces the delegate on every successful reload.
type Shell struct {
	cfg    Config
	logger *slog.Logger
	report hotswap.Reporter

	// mu serializes backend use.
	mu           sync.Mutex
	backend      hotswap.Backend
	path         string
	baseNS       string
	baseDeclared bool
	global       string
	generation   int
	started      bool
	closed       bool

	// handoff guards the delegate; dispatch holds it shared.
	handoff  sync.RWMutex
	delegate Delegate
}

var _ Lifecycle = (*Shell)(nil)

func New(cfg Config) (*Shell, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("new shell: registry is nil")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("new shell: source path is empty")
	}
	cfg.setDefaults()
	return &Shell{
		cfg:    cfg,
		logger: cfg.Registry.Logger().With("app", cfg.TypeName),
		report: cfg.Registry.Reporter(metrics.KindApp, cfg.TypeName),
		baseNS: hotswap.BaseNamespace(cfg.TypeName),
	}, nil
}

// Start declares the base generation and watches the source, which installs
// the first delegate before Start returns.
func (s *Shell) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.path = s.cfg.Registry.ResolveSource(s.cfg.Path)
	backend, err := s.cfg.Registry.NewBackend()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("start %s: create backend: %w", s.cfg.TypeName, err)
	}
	if err := hotswap.ApplyOptions(backend, s.path, s.cfg.Options); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("start %s: %w", s.cfg.TypeName, err)
	}
	s.backend = backend

	unit := s.cfg.Registry.Watcher().ResolveUnit(s.path)
	if header, impl, err := watch.Read(unit); err == nil {
		if err := s.declareBase(header, impl); err != nil {
			s.logger.Debug("base generation deferred", "error", err)
		}
	}
	s.mu.Unlock()

	s.cfg.Registry.Watcher().Watch(s.path, s.reload)
	return nil
}

// Rewrite preprocesses an application unit the way a Shell configured with
// cfg does: the host framework base becomes the forwarding base.
func Rewrite(cfg Config, header, impl string) hotswap.Source {
	cfg.setDefaults()
	src := hotswap.Preprocess(header, impl)
	src.Body = hotswap.RenameIdent(src.Body, cfg.HostBase, cfg.ForwardBase)
	if pkg, _, ok := strings.Cut(cfg.HostBase, "."); ok {
		if !regexp.MustCompile(`\b` + regexp.QuoteMeta(pkg) + `\.`).MatchString(src.Body) {
			src.DropImport(pkg)
		}
	}
	src.AddImport(cfg.ForwardImport)
	return src
}

func (s *Shell) rewrite(header, impl string) hotswap.Source {
	return Rewrite(s.cfg, header, impl)
}

func (s *Shell) declareBase(header, impl string) error {
	code := s.rewrite(header, impl).Wrap(s.baseNS)
	if err := s.backend.Declare(code); err != nil {
		return hotswap.CompileError{Unit: s.cfg.TypeName, Namespace: s.baseNS, Err: err}
	}
	s.baseDeclared = true
	return nil
}

func (s *Shell) reload(u watch.Unit) {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	next, ns, global, err := s.compile(u)
	if err != nil {
		s.report.CompileFailed(err, started)
		return
	}
	s.install(next)

	if s.global != "" {
		if err := s.backend.AssignGlobal(s.global, "nil"); err != nil {
			s.logger.Warn("release previous delegate", "global", s.global, "error", err)
		}
	}
	s.global = global
	s.generation++
	s.report.Reloaded(s.generation, ns, started)
}

// compile declares a new generation and builds its delegate in a global of
// its own, leaving the live delegate untouched on failure.
func (s *Shell) compile(u watch.Unit) (Delegate, string, string, error) {
	header, impl, err := watch.Read(u)
	if err != nil {
		return nil, "", "", hotswap.CompileError{Unit: s.cfg.TypeName, Err: hotswap.NotFoundError{Path: u.Path, Err: err}}
	}
	if !s.baseDeclared {
		if err := s.declareBase(header, impl); err != nil {
			return nil, "", "", err
		}
	}

	ns := s.backend.UniqueName(strings.ToLower(s.cfg.TypeName))
	fail := func(err error) (Delegate, string, string, error) {
		return nil, ns, "", hotswap.CompileError{Unit: s.cfg.TypeName, Namespace: ns, Err: err}
	}
	code, err := hotswap.Derive(s.rewrite(header, impl), s.cfg.TypeName, ns)
	if err != nil {
		return fail(err)
	}
	if err := s.backend.Declare(code); err != nil {
		return fail(err)
	}
	global := ns + "_app"
	ctor := ns + "." + constructor(s.cfg.Options, s.cfg.TypeName) + "()"
	if err := s.backend.DeclareGlobal(global, s.cfg.Options.Interface, ctor); err != nil {
		return fail(fmt.Errorf("construct delegate: %w", err))
	}
	v, _ := s.backend.Global(global)
	d, ok := v.(Delegate)
	if !ok {
		_ = s.backend.AssignGlobal(global, "nil")
		return fail(fmt.Errorf("%s.%s (%T) is not a shell delegate", ns, s.cfg.TypeName, v))
	}
	return d, ns, global, nil
}

// install hands off from the live delegate to next: save, install, attach,
// Setup, load. The host observes either delegate in full, never next before
// its Setup. The first delegate gets its Setup from the host.
func (s *Shell) install(next Delegate) {
	s.handoff.Lock()
	defer s.handoff.Unlock()

	prev := s.delegate
	var state *bytes.Buffer
	if prev != nil && s.cfg.TransferState {
		buf, saved, err := hotswap.SaveState(prev)
		if err != nil {
			s.report.StateTransferFailed(hotswap.StateTransferError{Unit: s.cfg.TypeName, Err: fmt.Errorf("save: %w", err)}, "")
		} else if saved {
			state = buf
		}
	}

	s.delegate = next
	next.AttachHost(s.cfg.Host)
	if prev == nil {
		return
	}
	s.guard("Setup", next.Setup)
	if state != nil {
		if err := hotswap.LoadState(next, state); err != nil {
			s.report.StateTransferFailed(hotswap.StateTransferError{Unit: s.cfg.TypeName, Err: err}, "")
		}
	}
}

// Generation returns the number of installed generations.
func (s *Shell) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Delegate returns the live delegate, nil before the first install.
func (s *Shell) Delegate() Delegate {
	s.handoff.RLock()
	defer s.handoff.RUnlock()
	return s.delegate
}

// Shutdown runs Cleanup on the live delegate, stops change detection and
// releases the delegate. Later lifecycle calls are no-ops.
func (s *Shell) Shutdown() {
	s.Cleanup()
	s.cfg.Registry.Watcher().Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.global != "" {
		if err := s.backend.AssignGlobal(s.global, "nil"); err != nil {
			s.logger.Warn("release delegate", "error", err)
		}
	}
	s.handoff.Lock()
	s.delegate = nil
	s.handoff.Unlock()
}

// dispatch forwards one call to the live delegate. A panicking delegate is
// logged and the host keeps running.
func (s *Shell) dispatch(name string, fn func(d Delegate)) {
	s.handoff.RLock()
	defer s.handoff.RUnlock()
	if s.delegate == nil {
		return
	}
	d := s.delegate
	s.guard(name, func() { fn(d) })
}

func (s *Shell) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("delegate panicked", "call", name, "panic", r)
		}
	}()
	fn()
}

func (s *Shell) Setup()  { s.dispatch("Setup", func(d Delegate) { d.Setup() }) }
func (s *Shell) Update() { s.dispatch("Update", func(d Delegate) { d.Update() }) }
func (s *Shell) Draw()   { s.dispatch("Draw", func(d Delegate) { d.Draw() }) }

func (s *Shell) MouseDown(e MouseEvent) {
	s.dispatch("MouseDown", func(d Delegate) { d.MouseDown(e) })
}

func (s *Shell) MouseUp(e MouseEvent) {
	s.dispatch("MouseUp", func(d Delegate) { d.MouseUp(e) })
}

func (s *Shell) MouseMove(e MouseEvent) {
	s.dispatch("MouseMove", func(d Delegate) { d.MouseMove(e) })
}

func (s *Shell) MouseDrag(e MouseEvent) {
	s.dispatch("MouseDrag", func(d Delegate) { d.MouseDrag(e) })
}

func (s *Shell) MouseWheel(e MouseEvent) {
	s.dispatch("MouseWheel", func(d Delegate) { d.MouseWheel(e) })
}

func (s *Shell) TouchesBegan(e TouchEvent) {
	s.dispatch("TouchesBegan", func(d Delegate) { d.TouchesBegan(e) })
}

func (s *Shell) TouchesMoved(e TouchEvent) {
	s.dispatch("TouchesMoved", func(d Delegate) { d.TouchesMoved(e) })
}

func (s *Shell) TouchesEnded(e TouchEvent) {
	s.dispatch("TouchesEnded", func(d Delegate) { d.TouchesEnded(e) })
}

func (s *Shell) KeyDown(e KeyEvent) {
	s.dispatch("KeyDown", func(d Delegate) { d.KeyDown(e) })
}

func (s *Shell) KeyUp(e KeyEvent) {
	s.dispatch("KeyUp", func(d Delegate) { d.KeyUp(e) })
}

func (s *Shell) Resize(width, height int) {
	s.dispatch("Resize", func(d Delegate) { d.Resize(width, height) })
}

func (s *Shell) FileDrop(e FileDropEvent) {
	s.dispatch("FileDrop", func(d Delegate) { d.FileDrop(e) })
}

func (s *Shell) Cleanup() { s.dispatch("Cleanup", func(d Delegate) { d.Cleanup() }) }

func constructor(o hotswap.Options, typeName string) string {
	if o.Constructor != "" {
		return o.Constructor
	}
	return "New" + typeName
}
