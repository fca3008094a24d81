package yaegi_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyanchen/hotswap"
	"github.com/chenyanchen/hotswap/backend/yaegi"
	"github.com/chenyanchen/hotswap/backend/yaegi/yaegitest"
	"github.com/chenyanchen/hotswap/shell"
	"github.com/chenyanchen/hotswap/watch"
)

type env struct {
	root     string
	t0       time.Time
	watcher  *watch.Watcher
	registry *hotswap.Registry

	mu     sync.Mutex
	events []hotswap.Event
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		root: t.TempDir(),
		t0:   time.Now().Add(-time.Hour).Truncate(time.Second),
	}
	e.watcher = watch.New(e.root, watch.Manual())
	t.Cleanup(e.watcher.Close)

	r, err := hotswap.NewRegistry(hotswap.RegistryConfig{
		Watcher: e.watcher,
		NewBackend: yaegi.Factory(
			yaegi.WithLibrary(yaegitest.Library, yaegitest.Symbols),
			yaegi.WithLibrary(yaegi.HotswapLibrary, yaegi.HotswapSymbols),
			yaegi.WithLibrary(yaegi.ShellLibrary, yaegi.ShellSymbols),
		),
		AppRoot: e.root,
		OnEvent: func(ev hotswap.Event) {
			e.mu.Lock()
			e.events = append(e.events, ev)
			e.mu.Unlock()
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Teardown() })
	e.registry = r
	return e
}

// write replaces src/<name>, stamping it tick seconds after the base time.
func (e *env) write(t *testing.T, name, content string, tick int) {
	t.Helper()
	path := filepath.Join(e.root, "src", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	stamp := e.t0.Add(time.Duration(tick) * time.Second)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
}

func (e *env) lastEvent(t *testing.T) hotswap.Event {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(t, e.events)
	return e.events[len(e.events)-1]
}

func shipSource(name string, speed int) string {
	return fmt.Sprintf(`package fleet

type Ship struct {
	x int
}

func NewShip() *Ship { return &Ship{} }

func (s *Ship) Name() string { return %q }

func (s *Ship) Move(dx int) int {
	s.x += %d * dx
	return s.x
}
`, name, speed)
}

var shipOptions = hotswap.Options{
	Libraries: []string{yaegitest.Library},
	Interface: "yaegitest.Ship",
}

func TestSession_RebindsEveryHandle(t *testing.T) {
	e := newEnv(t)
	e.write(t, "Ship.go", shipSource("sloop", 1), 0)

	s, err := hotswap.Initialize[yaegitest.Ship](e.registry, "Ship.go", shipOptions)
	require.NoError(t, err)
	require.Equal(t, 1, s.Generation(), "first generation: %+v", e.lastEvent(t))

	flagship, err := hotswap.Make[yaegitest.Ship](e.registry)
	require.NoError(t, err)
	escort := flagship.Clone()
	scout, err := hotswap.Make[yaegitest.Ship](e.registry)
	require.NoError(t, err)
	handles := []*hotswap.Handle[yaegitest.Ship]{flagship, escort, scout}

	for _, h := range handles {
		require.True(t, h.Bound())
		assert.Equal(t, "sloop", h.Get().Name())
	}
	assert.Equal(t, 3, flagship.Get().Move(3))

	e.write(t, "Ship.go", shipSource("frigate", 2), 1)
	e.watcher.Poll()

	assert.Equal(t, 2, s.Generation())
	for _, h := range handles {
		assert.Equal(t, 2, h.Generation())
		assert.Equal(t, "frigate", h.Get().Name())
	}
	assert.Equal(t, 2, flagship.Get().Move(1), "a fresh instance of the new generation")
	assert.Equal(t, 2, escort.Get().Move(1), "clones get instances of their own")
}

func TestSession_CompileErrorKeepsHandles(t *testing.T) {
	e := newEnv(t)
	e.write(t, "Ship.go", shipSource("sloop", 1), 0)

	s, err := hotswap.Initialize[yaegitest.Ship](e.registry, "Ship.go", shipOptions)
	require.NoError(t, err)
	h, err := hotswap.Make[yaegitest.Ship](e.registry)
	require.NoError(t, err)
	before := h.Get()
	before.Move(5)

	e.write(t, "Ship.go", "package fleet\n\ntype Ship struct {\n\tx int\n\nfunc NewShip() *Ship { return &Ship{} }\n", 1)
	e.watcher.Poll()

	assert.Equal(t, 1, s.Generation())
	assert.Equal(t, 1, h.Generation())
	assert.True(t, before == h.Get(), "the handle keeps its instance")
	assert.Equal(t, 6, h.Get().Move(1))
	assert.Equal(t, hotswap.EventCompileFailed, e.lastEvent(t).Kind)
}

func TestSession_RejectsTypeMissingMethods(t *testing.T) {
	e := newEnv(t)
	e.write(t, "Ship.go", shipSource("sloop", 1), 0)

	s, err := hotswap.Initialize[yaegitest.Ship](e.registry, "Ship.go", shipOptions)
	require.NoError(t, err)
	h, err := hotswap.Make[yaegitest.Ship](e.registry)
	require.NoError(t, err)

	e.write(t, "Ship.go", "package fleet\n\ntype Ship struct{}\n\nfunc NewShip() *Ship { return &Ship{} }\n\nfunc (s *Ship) Name() string { return \"raft\" }\n", 1)
	e.watcher.Poll()

	assert.Equal(t, 1, s.Generation())
	assert.Equal(t, "sloop", h.Get().Name())
	assert.Equal(t, hotswap.EventCompileFailed, e.lastEvent(t).Kind)
}

func counterSource(version int) string {
	return fmt.Sprintf(`package counter

import "github.com/chenyanchen/hotswap"

type Counter struct {
	count int
}

func NewCounter() *Counter { return &Counter{} }

func (c *Counter) Incr()        { c.count++ }
func (c *Counter) Count() int   { return c.count }
func (c *Counter) Version() int { return %d }

func (c *Counter) Save(enc hotswap.Encoder) error { return enc.Encode(c.count) }
func (c *Counter) Load(dec hotswap.Decoder) error { return dec.Decode(&c.count) }
`, version)
}

func TestSession_TransfersState(t *testing.T) {
	e := newEnv(t)
	e.write(t, "Counter.go", counterSource(1), 0)

	_, err := hotswap.Initialize[yaegitest.Counter](e.registry, "Counter.go", hotswap.Options{
		Libraries: []string{yaegitest.Library, yaegi.HotswapLibrary},
		Interface: "yaegitest.Counter",
	})
	require.NoError(t, err)
	h, err := hotswap.Make[yaegitest.Counter](e.registry)
	require.NoError(t, err)
	require.True(t, h.Bound(), "first generation: %+v", e.lastEvent(t))
	for i := 0; i < 5; i++ {
		h.Get().Incr()
	}

	e.write(t, "Counter.go", counterSource(2), 1)
	e.watcher.Poll()

	assert.Equal(t, 2, h.Get().Version())
	assert.Equal(t, 5, h.Get().Count())
}

func gameSource(version string) string {
	return fmt.Sprintf(`package main

import (
	"example.com/app"
	"github.com/chenyanchen/hotswap"
	"github.com/chenyanchen/hotswap/backend/yaegi/yaegitest"
)

type Game struct {
	app.App
	score int
}

func NewGame() *Game { return &Game{} }

func (g *Game) Setup()  { yaegitest.Record("%[1]s.Setup") }
func (g *Game) Update() { g.score++ }
func (g *Game) Draw()   { yaegitest.Record("%[1]s.Draw %%d", g.score) }

func (g *Game) Save(enc hotswap.Encoder) error {
	yaegitest.Record("%[1]s.Save")
	return enc.Encode(g.score)
}

func (g *Game) Load(dec hotswap.Decoder) error {
	yaegitest.Record("%[1]s.Load")
	return dec.Decode(&g.score)
}
`, version)
}

func TestShell_HandsOffBetweenInterpretedDelegates(t *testing.T) {
	e := newEnv(t)
	e.write(t, "Game.go", gameSource("v1"), 0)
	yaegitest.Events()

	host := shell.NewHeadless(320, 200)
	sh, err := shell.New(shell.Config{
		Registry: e.registry,
		Host:     host,
		Path:     "Game.go",
		Options: hotswap.Options{
			Libraries:    []string{yaegi.ShellLibrary, yaegi.HotswapLibrary, yaegitest.Library},
			Declarations: []string{yaegi.AppBaseSource},
			Interface:    "shell.StatefulDelegate",
		},
		ForwardBase:   yaegi.AppBaseType,
		ForwardImport: yaegi.AppBaseImport,
		TransferState: true,
	})
	require.NoError(t, err)
	require.NoError(t, sh.Start())
	defer sh.Shutdown()
	require.Equal(t, 1, sh.Generation(), "first generation: %+v", e.lastEvent(t))
	require.NotNil(t, sh.Delegate())

	sh.Setup()
	for i := 0; i < 3; i++ {
		sh.Update()
	}
	sh.Draw()
	assert.Equal(t, []string{"v1.Setup", "v1.Draw 3"}, yaegitest.Events())

	e.write(t, "Game.go", gameSource("v2"), 1)
	e.watcher.Poll()
	require.Equal(t, 2, sh.Generation())

	sh.Draw()
	assert.Equal(t, []string{"v1.Save", "v2.Setup", "v2.Load", "v2.Draw 3"}, yaegitest.Events())
}
