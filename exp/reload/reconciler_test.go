package reload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyanchen/hotswap"
	"github.com/chenyanchen/hotswap/watch"
)

var saysRe = regexp.MustCompile(`// says: (\w+)`)

// phraseBackend compiles functions returning the word after "// says:".
type phraseBackend struct {
	counters map[string]int
}

func (b *phraseBackend) AddIncludePath(string) error                { return nil }
func (b *phraseBackend) LoadLibrary(string) error                   { return nil }
func (b *phraseBackend) PreloadHost() error                         { return nil }
func (b *phraseBackend) Declare(string) error                       { return nil }
func (b *phraseBackend) DeclareGlobal(string, string, string) error { return nil }
func (b *phraseBackend) AssignGlobal(string, string) error          { return nil }
func (b *phraseBackend) Global(string) (any, bool)                  { return nil, false }

func (b *phraseBackend) UniqueName(prefix string) string {
	b.counters[prefix]++
	return fmt.Sprintf("%s_g%d", prefix, b.counters[prefix])
}

func (b *phraseBackend) CompileFunction(name, src string) (any, error) {
	if !strings.Contains(src, "func "+name+"(") {
		return nil, fmt.Errorf("undefined: %s", name)
	}
	m := saysRe.FindStringSubmatch(src)
	if m == nil {
		return nil, errors.New("syntax error")
	}
	word := m[1]
	return func() string { return word }, nil
}

type reconcileEnv struct {
	root     string
	t0       time.Time
	watcher  *watch.Watcher
	registry *hotswap.Registry
}

func newReconcileEnv(t *testing.T) *reconcileEnv {
	t.Helper()
	env := &reconcileEnv{root: t.TempDir(), t0: time.Now().Add(-time.Hour).Truncate(time.Second)}
	env.watcher = watch.New(env.root, watch.Manual())
	t.Cleanup(env.watcher.Close)
	r, err := hotswap.NewRegistry(hotswap.RegistryConfig{
		Watcher: env.watcher,
		NewBackend: func() (hotswap.Backend, error) {
			return &phraseBackend{counters: make(map[string]int)}, nil
		},
		AppRoot: env.root,
	})
	require.NoError(t, err)
	env.registry = r
	return env
}

func (env *reconcileEnv) write(t *testing.T, name, word string, tick int) {
	t.Helper()
	path := filepath.Join(env.root, "src", name+".go")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	src := fmt.Sprintf("package phrases\n\n// says: %s\nfunc %s() string { return %q }\n", word, name, word)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	stamp := env.t0.Add(time.Duration(tick) * time.Second)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
}

func call(t *testing.T, r *Reconciler[func() string], name string) string {
	t.Helper()
	slot, ok := r.Get(name)
	require.True(t, ok, name)
	fn, err := slot.Get()
	require.NoError(t, err)
	return fn()
}

func TestReconcile_ReuseAndRebuild(t *testing.T) {
	env := newReconcileEnv(t)
	env.write(t, "Hello", "hello", 0)
	env.write(t, "Bye", "bye", 0)
	env.write(t, "Hi", "hi", 0)

	r, err := New[func() string](env.registry, []Spec{
		{Name: "Hello", Path: "Hello.go"},
		{Name: "Bye", Path: "Bye.go"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", "Bye"}, r.Names())
	assert.Equal(t, "hello", call(t, r, "Hello"))
	hello, _ := r.Get("Hello")
	bye, _ := r.Get("Bye")

	res, err := r.Reconcile(context.Background(), []Spec{
		{Name: "Hello", Path: "Hello.go"},
		{Name: "Bye", Path: "Bye.go", Options: hotswap.Options{PreloadHost: true}},
		{Name: "Hi", Path: "Hi.go"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi"}, res.Added)
	assert.Equal(t, []string{"Hello"}, res.Reused)
	assert.Equal(t, []string{"Bye", "Hi"}, res.Rebuilt)
	assert.Equal(t, []string{"Bye"}, res.Closed)
	assert.Empty(t, res.Removed)

	reused, _ := r.Get("Hello")
	assert.Same(t, hello, reused)
	rebuilt, _ := r.Get("Bye")
	assert.NotSame(t, bye, rebuilt)
	assert.Equal(t, "hi", call(t, r, "Hi"))

	env.write(t, "Bye", "farewell", 1)
	env.watcher.Poll()
	assert.Equal(t, "farewell", call(t, r, "Bye"))
	fn, err := bye.Get()
	require.NoError(t, err)
	assert.Equal(t, "bye", fn(), "the replaced slot no longer recompiles")
}

func TestReconcile_Removed(t *testing.T) {
	env := newReconcileEnv(t)
	env.write(t, "Hello", "hello", 0)
	env.write(t, "Bye", "bye", 0)

	r, err := New[func() string](env.registry, []Spec{
		{Name: "Hello", Path: "Hello.go"},
		{Name: "Bye", Path: "Bye.go"},
	})
	require.NoError(t, err)

	res, err := r.Reconcile(context.Background(), []Spec{{Name: "Hello", Path: "Hello.go"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bye"}, res.Removed)
	assert.Equal(t, []string{"Bye"}, res.Closed)
	_, ok := r.Get("Bye")
	assert.False(t, ok)
	assert.Equal(t, []string{"Hello"}, r.Names())
}

func TestReconcile_PrewarmFailureKeepsCurrent(t *testing.T) {
	env := newReconcileEnv(t)
	env.write(t, "Hello", "hello", 0)

	r, err := New[func() string](env.registry, []Spec{{Name: "Hello", Path: "Hello.go"}})
	require.NoError(t, err)

	_, err = r.Reconcile(context.Background(), []Spec{
		{Name: "Hello", Path: "Hello.go"},
		{Name: "Missing", Path: "Missing.go"},
	})
	require.Error(t, err)
	assert.Equal(t, []string{"Hello"}, r.Names())
	assert.Equal(t, "hello", call(t, r, "Hello"))
}

func TestReconcile_InvalidSpecs(t *testing.T) {
	env := newReconcileEnv(t)
	r, err := New[func() string](env.registry, nil)
	require.NoError(t, err)

	_, err = r.Reconcile(context.Background(), []Spec{{Name: "Hello"}})
	assert.Error(t, err)
	_, err = r.Reconcile(context.Background(), []Spec{
		{Name: "Hello", Path: "Hello.go"},
		{Name: "Hello", Path: "Other.go"},
	})
	assert.Error(t, err)

	_, err = New[func() string](nil, nil)
	assert.Error(t, err)
}

func TestReconcile_CanceledContext(t *testing.T) {
	env := newReconcileEnv(t)
	env.write(t, "Hello", "hello", 0)
	r, err := New[func() string](env.registry, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Reconcile(ctx, []Spec{{Name: "Hello", Path: "Hello.go"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.Names())
}
