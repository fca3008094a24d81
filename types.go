package hotswap

import (
	"fmt"
	"path/filepath"
	"time"
)

// Backend is the contract a compilation backend must satisfy. A backend is
// not safe for concurrent use; its owner serializes every call.
//
// DeclareGlobal and AssignGlobal receive an expression in the backend's
// source language. DeclareGlobal types the global as typ, or leaves it
// untyped when typ is empty. Global reports whether name was ever declared;
// a released global exists with a nil value.
type Backend interface {
	AddIncludePath(dir string) error
	LoadLibrary(name string) error
	PreloadHost() error
	Declare(src string) error
	UniqueName(prefix string) string
	DeclareGlobal(name string, typ string, expr string) error
	AssignGlobal(name string, expr string) error
	Global(name string) (any, bool)
	CompileFunction(name string, src string) (any, error)
}

// Options configures the backend of one session or function slot.
type Options struct {
	IncludePaths []string `json:"include_paths,omitempty" yaml:"include_paths,omitempty"`
	Libraries    []string `json:"libraries,omitempty" yaml:"libraries,omitempty"`
	Declarations []string `json:"declarations,omitempty" yaml:"declarations,omitempty"`
	PreloadHost  bool     `json:"preload_host,omitempty" yaml:"preload_host,omitempty"`
	// Interface is the backend-side name of the host interface instances
	// are stored as, e.g. "app.Counter". Empty stores them untyped.
	Interface string `json:"interface,omitempty" yaml:"interface,omitempty"`
	// Constructor names the function building a fresh instance. Defaults to
	// New<Type>.
	Constructor string `json:"constructor,omitempty" yaml:"constructor,omitempty"`
}

func (o Options) constructor(typeName string) string {
	if o.Constructor != "" {
		return o.Constructor
	}
	return "New" + typeName
}

// ApplyOptions configures b in the same order for every caller: the source
// directory, extra include paths, libraries, raw declarations, then the host
// runtime.
func ApplyOptions(b Backend, sourcePath string, o Options) error {
	if sourcePath != "" {
		if err := b.AddIncludePath(filepath.Dir(sourcePath)); err != nil {
			return fmt.Errorf("add source dir: %w", err)
		}
	}
	for _, p := range o.IncludePaths {
		if err := b.AddIncludePath(p); err != nil {
			return fmt.Errorf("add include path %s: %w", p, err)
		}
	}
	for _, lib := range o.Libraries {
		if err := b.LoadLibrary(lib); err != nil {
			return fmt.Errorf("load library %s: %w", lib, err)
		}
	}
	for _, d := range o.Declarations {
		if err := b.Declare(d); err != nil {
			return fmt.Errorf("declare %q: %w", d, err)
		}
	}
	if o.PreloadHost {
		if err := b.PreloadHost(); err != nil {
			return fmt.Errorf("preload host runtime: %w", err)
		}
	}
	return nil
}

// EventKind classifies operator-visible reload events.
type EventKind string

const (
	EventReloaded            EventKind = "reloaded"
	EventCompileFailed       EventKind = "compile_failed"
	EventStateTransferFailed EventKind = "state_transfer_failed"
)

// Event is one operator-visible outcome of a reload.
type Event struct {
	Kind       EventKind `json:"kind"`
	Unit       string    `json:"unit"` // type or function name
	Generation int       `json:"generation,omitempty"`
	Namespace  string    `json:"namespace,omitempty"`
	Handle     string    `json:"handle,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}
