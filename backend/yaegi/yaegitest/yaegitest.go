// Package yaegitest provides host types, and their export tables, for
// exercising interpreted generations end to end.
package yaegitest

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/traefik/yaegi/interp"

	"github.com/chenyanchen/hotswap"
)

// Library is the name Symbols are registered under.
const Library = "yaegitest"

// Ship is a reloadable type without state.
type Ship interface {
	Name() string
	Move(dx int) int
}

// Counter is a reloadable type that carries its count across generations.
type Counter interface {
	Incr()
	Count() int
	Version() int
	hotswap.Stateful
}

var (
	mu     sync.Mutex
	events []string
)

// Record appends a formatted event to the shared log.
func Record(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	events = append(events, fmt.Sprintf(format, args...))
}

// Events returns the recorded events and clears the log.
func Events() []string {
	mu.Lock()
	defer mu.Unlock()
	out := events
	events = nil
	return out
}

// Symbols exports this package to interpreted sources.
var Symbols = interp.Exports{
	"github.com/chenyanchen/hotswap/backend/yaegi/yaegitest/yaegitest": map[string]reflect.Value{
		// function, constant and variable definitions
		"Record": reflect.ValueOf(Record),

		// type definitions
		"Counter": reflect.ValueOf((*Counter)(nil)),
		"Ship":    reflect.ValueOf((*Ship)(nil)),

		// interface wrapper definitions
		"_Counter": reflect.ValueOf((*_yaegitest_Counter)(nil)),
		"_Ship":    reflect.ValueOf((*_yaegitest_Ship)(nil)),
	},
}

// _yaegitest_Counter is an interface wrapper for Counter type
type _yaegitest_Counter struct {
	IValue   interface{}
	WCount   func() int
	WIncr    func()
	WLoad    func(dec hotswap.Decoder) error
	WSave    func(enc hotswap.Encoder) error
	WVersion func() int
}

func (W _yaegitest_Counter) Count() int                     { return W.WCount() }
func (W _yaegitest_Counter) Incr()                          { W.WIncr() }
func (W _yaegitest_Counter) Load(dec hotswap.Decoder) error { return W.WLoad(dec) }
func (W _yaegitest_Counter) Save(enc hotswap.Encoder) error { return W.WSave(enc) }
func (W _yaegitest_Counter) Version() int                   { return W.WVersion() }

// _yaegitest_Ship is an interface wrapper for Ship type
type _yaegitest_Ship struct {
	IValue interface{}
	WMove  func(dx int) int
	WName  func() string
}

func (W _yaegitest_Ship) Move(dx int) int { return W.WMove(dx) }
func (W _yaegitest_Ship) Name() string    { return W.WName() }
