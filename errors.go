package hotswap

import (
	"errors"
	"fmt"
)

// ErrUninitialized means a function slot was called before any successful
// compilation.
var ErrUninitialized = errors.New("hotswap: function slot is uninitialized")

// NotFoundError means a source unit could not be resolved or read.
type NotFoundError struct {
	Path string
	Err  error
}

func (e NotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("source not found: %s", e.Path)
	}
	return fmt.Sprintf("source not found: %s: %v", e.Path, e.Err)
}

func (e NotFoundError) Unwrap() error {
	return e.Err
}

// CompileError means a candidate generation failed to build. The previous
// generation keeps running.
type CompileError struct {
	Unit      string
	Namespace string
	Err       error
}

func (e CompileError) Error() string {
	if e.Namespace == "" {
		return fmt.Sprintf("compile %s: %v", e.Unit, e.Err)
	}
	return fmt.Sprintf("compile %s as %s: %v", e.Unit, e.Namespace, e.Err)
}

func (e CompileError) Unwrap() error {
	return e.Err
}

// MissingSessionError means a handle or reload was requested for a type
// whose session was never initialized.
type MissingSessionError struct {
	Type string
}

func (e MissingSessionError) Error() string {
	return fmt.Sprintf("missing session for %s: call hotswap.Initialize[%s] before using this type", e.Type, e.Type)
}

// StateTransferError means state saved by one generation could not be
// loaded into the next. The new instance stays live with default state for
// the fields that were not restored.
type StateTransferError struct {
	Unit   string
	Handle string
	Err    error
}

func (e StateTransferError) Error() string {
	if e.Handle == "" {
		return fmt.Sprintf("state transfer for %s: %v", e.Unit, e.Err)
	}
	return fmt.Sprintf("state transfer for %s (%s): %v", e.Unit, e.Handle, e.Err)
}

func (e StateTransferError) Unwrap() error {
	return e.Err
}
