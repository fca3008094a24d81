// Package hotswap replaces the implementation of selected types and functions
// inside a running process.
//
// It offers:
// - a Registry of per-type Sessions keyed by type identity
// - source preprocessing that isolates every generation in its own namespace
// - live Handles that are repointed atomically on each successful reload
// - optional state transfer across a swap through Stateful
// - standalone function slots (Func) rebound on every edit
//
// Compilation is delegated to a Backend; package backend/yaegi provides one
// built on the yaegi Go interpreter. Change detection lives in package watch.
package hotswap
