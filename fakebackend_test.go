package hotswap

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// fakeBackend interprets just enough of a unit to build test instances: a
// declared namespace remembers its source and the constructor expression
// "<ns>.<Ctor>()" builds an instance from that source with build.
type fakeBackend struct {
	mu sync.Mutex

	includes     []string
	libraries    []string
	declarations []string
	preloaded    bool

	sources     map[string]string
	globals     map[string]any
	globalTypes map[string]string
	counters    map[string]int
	calls       []string
	compiled    string

	build   func(ns, src string) (any, error)
	compile func(name, src string) (any, error)
	// refuse makes DeclareGlobal fail for matching names.
	refuse func(name string) bool
}

var errSyntax = errors.New("syntax error")

var packageRe = regexp.MustCompile(`(?m)^package\s+(\w+)`)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sources:     make(map[string]string),
		globals:     make(map[string]any),
		globalTypes: make(map[string]string),
		counters:    make(map[string]int),
		build:       buildCounter,
		compile:     compileArith,
	}
}

func (b *fakeBackend) AddIncludePath(dir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.includes = append(b.includes, dir)
	return nil
}

func (b *fakeBackend) LoadLibrary(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name == "missing" {
		return fmt.Errorf("library %s not registered", name)
	}
	b.libraries = append(b.libraries, name)
	return nil
}

func (b *fakeBackend) PreloadHost() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.preloaded = true
	return nil
}

func (b *fakeBackend) Declare(src string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "declare")
	if strings.Contains(src, "SYNTAX ERROR") {
		return errSyntax
	}
	m := packageRe.FindStringSubmatch(src)
	if m == nil {
		b.declarations = append(b.declarations, src)
		return nil
	}
	b.sources[m[1]] = src
	return nil
}

func (b *fakeBackend) UniqueName(prefix string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[prefix]++
	return fmt.Sprintf("%s_g%d", prefix, b.counters[prefix])
}

func (b *fakeBackend) DeclareGlobal(name string, typ string, expr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.globals[name]; ok {
		return fmt.Errorf("%s redeclared", name)
	}
	if b.refuse != nil && b.refuse(name) {
		return fmt.Errorf("cannot construct %s", name)
	}
	v, err := b.eval(expr)
	if err != nil {
		return err
	}
	b.globals[name] = v
	b.globalTypes[name] = typ
	b.calls = append(b.calls, "declare_global "+name)
	return nil
}

func (b *fakeBackend) AssignGlobal(name string, expr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.globals[name]; !ok {
		return fmt.Errorf("undefined: %s", name)
	}
	v, err := b.eval(expr)
	if err != nil {
		return err
	}
	b.globals[name] = v
	b.calls = append(b.calls, "assign_global "+name)
	return nil
}

func (b *fakeBackend) Global(name string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.globals[name]
	return v, ok
}

func (b *fakeBackend) CompileFunction(name string, src string) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compiled = src
	if strings.Contains(src, "SYNTAX ERROR") {
		return nil, errSyntax
	}
	if !regexp.MustCompile(`\bfunc\s+` + regexp.QuoteMeta(name) + `\b`).MatchString(src) {
		return nil, fmt.Errorf("undefined: %s", name)
	}
	return b.compile(name, src)
}

func (b *fakeBackend) eval(expr string) (any, error) {
	if expr == "nil" {
		return nil, nil
	}
	if v, ok := b.globals[expr]; ok {
		return v, nil
	}
	ns, _, ok := strings.Cut(expr, ".")
	if !ok {
		return nil, fmt.Errorf("unsupported expression %q", expr)
	}
	src, ok := b.sources[ns]
	if !ok {
		return nil, fmt.Errorf("undefined: %s", ns)
	}
	return b.build(ns, src)
}

func (b *fakeBackend) global(name string) any {
	v, _ := b.Global(name)
	return v
}

func (b *fakeBackend) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// Counter is the host interface of the test units.
type Counter interface {
	Version() int
	Value() int
	Incr()
}

type fakeCounter struct {
	version int
	ns      string
	value   int
}

func (c *fakeCounter) Version() int { return c.version }
func (c *fakeCounter) Value() int   { return c.value }
func (c *fakeCounter) Incr()        { c.value++ }

type statefulCounter struct {
	fakeCounter
	failLoad bool
}

func (c *statefulCounter) Save(enc Encoder) error {
	return enc.Encode(c.value)
}

func (c *statefulCounter) Load(dec Decoder) error {
	if c.failLoad {
		return errors.New("incompatible state")
	}
	return dec.Decode(&c.value)
}

type notACounter struct{}

var (
	versionRe = regexp.MustCompile(`// version: (\d+)`)
	startRe   = regexp.MustCompile(`// start: (\d+)`)
)

// buildCounter reads markers from a unit:
//
//	// version: N     the value returned by Version
//	// start: N       the initial value
//	// stateful       implements Stateful
//	// load: fail     Load always fails
//	// not a counter  builds a value that is not a Counter
func buildCounter(ns, src string) (any, error) {
	if strings.Contains(src, "// not a counter") {
		return &notACounter{}, nil
	}
	c := fakeCounter{ns: ns}
	if m := versionRe.FindStringSubmatch(src); m != nil {
		c.version, _ = strconv.Atoi(m[1])
	}
	if m := startRe.FindStringSubmatch(src); m != nil {
		c.value, _ = strconv.Atoi(m[1])
	}
	if strings.Contains(src, "// stateful") {
		return &statefulCounter{fakeCounter: c, failLoad: strings.Contains(src, "// load: fail")}, nil
	}
	return &c, nil
}

var offsetRe = regexp.MustCompile(`return a \+ b \+ (\d+)`)

// compileArith builds func(int, int) int from "return a + b + N" bodies and
// reports anything else as the wrong shape.
func compileArith(_ string, src string) (any, error) {
	if strings.Contains(src, "// wrong shape") {
		return func(s string) string { return s }, nil
	}
	offset := 0
	if m := offsetRe.FindStringSubmatch(src); m != nil {
		offset, _ = strconv.Atoi(m[1])
	}
	return func(a, b int) int { return a + b + offset }, nil
}
