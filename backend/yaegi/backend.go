// Package yaegi implements hotswap.Backend on the yaegi Go interpreter.
//
// Every namespace is evaluated as its own interpreted package and host
// packages are made available through interp.Exports tables registered as
// libraries.
//
// Globals are held by the backend, not by the interpreter. A global is
// assigned the result of an interpreted constructor
//
//	func New() <typ> { return <expr> }
//
// compiled in a package of its own and called from Go. When typ names an
// exported host interface the value comes back as that interface, through
// the wrapper the library exports for it, so host code can call its methods.
// An expression that names a declared global evaluates to its value.
package yaegi

import (
	"fmt"
	"log/slog"
	"path"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/chenyanchen/hotswap"
)

var _ hotswap.Backend = (*Backend)(nil)

var (
	packageRe   = regexp.MustCompile(`(?m)^package\s+(\w+)`)
	qualifierRe = regexp.MustCompile(`\b([A-Za-z_]\w*)\.[A-Za-z_]`)
)

// Option configures a Backend.
type Option func(*Backend)

// WithLibrary makes exports loadable under name with LoadLibrary.
func WithLibrary(name string, exports interp.Exports) Option {
	return func(b *Backend) {
		b.libraries[name] = exports
	}
}

// WithLogger sets the logger used for evaluation traces.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Backend owns one interpreter. Include paths must be added before the
// first declaration; the first one becomes the interpreter GOPATH.
type Backend struct {
	logger    *slog.Logger
	libraries map[string]interp.Exports

	mu       sync.Mutex
	i        *interp.Interpreter
	includes []string
	counters map[string]int
	globals  map[string]any
	types    map[string]string
	// packages maps package names visible to constructors to import paths;
	// an empty path marks an ambiguous name.
	packages map[string]string
	ctors    map[string]reflect.Value
}

func New(opts ...Option) *Backend {
	b := &Backend{
		logger:    slog.Default(),
		libraries: make(map[string]interp.Exports),
		counters:  make(map[string]int),
		globals:   make(map[string]any),
		types:     make(map[string]string),
		packages:  make(map[string]string),
		ctors:     make(map[string]reflect.Value),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "yaegi")
	return b
}

// Factory returns a backend constructor for hotswap.RegistryConfig.
func Factory(opts ...Option) func() (hotswap.Backend, error) {
	return func() (hotswap.Backend, error) {
		return New(opts...), nil
	}
}

// IncludePaths returns the include paths in the order they were added.
func (b *Backend) IncludePaths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.includes...)
}

func (b *Backend) AddIncludePath(dir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.i != nil {
		return fmt.Errorf("add include path %s: interpreter already started", dir)
	}
	b.includes = append(b.includes, dir)
	return nil
}

func (b *Backend) LoadLibrary(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	exports, ok := b.libraries[name]
	if !ok {
		return fmt.Errorf("library %s is not registered", name)
	}
	return b.use(exports)
}

func (b *Backend) PreloadHost() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.use(stdlib.Symbols)
}

func (b *Backend) use(exports interp.Exports) error {
	if err := b.interp().Use(exports); err != nil {
		return err
	}
	for key := range exports {
		if !strings.Contains(key, "/") {
			continue
		}
		b.addPackage(path.Base(key), path.Dir(key))
	}
	return nil
}

func (b *Backend) addPackage(name, importPath string) {
	if prev, ok := b.packages[name]; ok && prev != importPath {
		b.packages[name] = ""
		return
	}
	b.packages[name] = importPath
}

// Declare evaluates src. A package clause makes the package importable by
// its name; import declarations make their packages visible to constructors
// under the names they bind.
func (b *Backend) Declare(src string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.eval(src); err != nil {
		return err
	}
	if m := packageRe.FindStringSubmatch(src); m != nil {
		b.packages[m[1]] = m[1]
		return nil
	}
	for _, spec := range hotswap.Preprocess(src, "").Imports {
		if name, importPath, ok := splitImport(spec); ok {
			b.packages[name] = importPath
		}
	}
	return nil
}

func (b *Backend) UniqueName(prefix string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[prefix]++
	return fmt.Sprintf("%s_g%d", prefix, b.counters[prefix])
}

func (b *Backend) DeclareGlobal(name string, typ string, expr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.globals[name]; ok {
		return fmt.Errorf("global %s already declared", name)
	}
	v, err := b.construct(typ, expr)
	if err != nil {
		return err
	}
	b.globals[name] = v
	b.types[name] = typ
	return nil
}

func (b *Backend) AssignGlobal(name string, expr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.globals[name]; !ok {
		return fmt.Errorf("global %s is not declared", name)
	}
	v, err := b.construct(b.types[name], expr)
	if err != nil {
		return err
	}
	b.globals[name] = v
	return nil
}

func (b *Backend) Global(name string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.globals[name]
	return v, ok
}

// construct evaluates expr as a typ. Constructors are compiled once per
// typ and expr.
func (b *Backend) construct(typ, expr string) (any, error) {
	expr = strings.TrimSpace(expr)
	if expr == "nil" {
		return nil, nil
	}
	if v, ok := b.globals[expr]; ok {
		return v, nil
	}
	if typ == "" {
		typ = "interface{}"
	}
	key := typ + "\x00" + expr
	fn, ok := b.ctors[key]
	if !ok {
		var err error
		if fn, err = b.compileConstructor(typ, expr); err != nil {
			return nil, err
		}
		b.ctors[key] = fn
	}
	return call(fn)
}

func (b *Backend) compileConstructor(typ, expr string) (reflect.Value, error) {
	b.counters["hotswap_new"]++
	pkg := fmt.Sprintf("hotswap_new%d", b.counters["hotswap_new"])
	src := hotswap.Source{
		Imports: b.importsFor(typ + " " + expr),
		Body:    fmt.Sprintf("func New() %s {\n\treturn %s\n}\n", typ, expr),
	}.Wrap(pkg)
	if _, err := b.eval(src); err != nil {
		return reflect.Value{}, err
	}
	fn, err := b.eval(pkg + ".New")
	if err != nil {
		return reflect.Value{}, fmt.Errorf("lookup %s.New: %w", pkg, err)
	}
	if fn.Kind() != reflect.Func || fn.Type().NumIn() != 0 || fn.Type().NumOut() != 1 {
		return reflect.Value{}, fmt.Errorf("constructor %s.New is not a func() %s", pkg, typ)
	}
	return fn, nil
}

// importsFor returns the import specs of the known packages code refers to.
func (b *Backend) importsFor(code string) []string {
	var specs []string
	seen := make(map[string]bool)
	for _, m := range qualifierRe.FindAllStringSubmatch(code, -1) {
		name := m[1]
		importPath := b.packages[name]
		if importPath == "" || seen[name] {
			continue
		}
		seen[name] = true
		spec := strconv.Quote(importPath)
		if path.Base(importPath) != name {
			spec = name + " " + spec
		}
		specs = append(specs, spec)
	}
	return specs
}

// call runs a constructor, converting interpreter panics into errors.
func call(fn reflect.Value) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("constructor panic: %v", r)
		}
	}()
	return valueOf(fn.Call(nil)[0]), nil
}

// splitImport returns the name an import spec binds and its path. Blank
// and dot imports bind nothing.
func splitImport(spec string) (name, importPath string, ok bool) {
	alias, quoted, found := strings.Cut(spec, " ")
	if !found {
		quoted, alias = spec, ""
	}
	importPath, err := strconv.Unquote(quoted)
	if err != nil || alias == "_" || alias == "." {
		return "", "", false
	}
	if alias == "" {
		alias = path.Base(importPath)
	}
	return alias, importPath, true
}

// CompileFunction evaluates src and returns the function name declared in
// its package.
func (b *Backend) CompileFunction(name string, src string) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := packageRe.FindStringSubmatch(src)
	if m == nil {
		return nil, fmt.Errorf("compile %s: source has no package clause", name)
	}
	if _, err := b.eval(src); err != nil {
		return nil, err
	}
	v, err := b.eval(m[1] + "." + name)
	if err != nil {
		return nil, fmt.Errorf("lookup %s.%s: %w", m[1], name, err)
	}
	fn := valueOf(v)
	if fn == nil {
		return nil, fmt.Errorf("%s.%s is nil", m[1], name)
	}
	return fn, nil
}

func (b *Backend) interp() *interp.Interpreter {
	if b.i == nil {
		opts := interp.Options{}
		if len(b.includes) > 0 {
			opts.GoPath = b.includes[0]
		}
		b.i = interp.New(opts)
	}
	return b.i
}

// eval runs src and converts interpreter panics into errors.
func (b *Backend) eval(src string) (v reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interpreter panic: %v", r)
		}
	}()
	v, err = b.interp().Eval(src)
	if err != nil {
		b.logger.Debug("eval failed", "error", err)
	}
	return v, err
}

func valueOf(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return nil
		}
	}
	if !v.CanInterface() {
		return nil
	}
	return v.Interface()
}
