// Package reload reconciles a declared set of function slots against a new
// declaration, typically re-read from configuration.
//
// Reconciler is the core type and performs:
// 1. build slots for added and changed specs
// 2. reuse slots whose spec is unchanged
// 3. prewarm rebuilt slots by compiling their first version
// 4. atomically swap the active set
// 5. close removed and replaced slots of the old set
//
// This package is EXPERIMENTAL and its API may change before v1.
package reload
