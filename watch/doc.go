// Package watch polls source units for modification and notifies callbacks.
//
// A unit is a declaration file (<Type>.go) and an optional implementation file
// (<Type>_impl.go) living in the same directory. The watcher compares
// modification times every PollInterval and fires the unit's callbacks when
// either file's time moves strictly forward.
//
// Every callback is invoked once immediately on registration, independent of
// change state, so registration doubles as "first load".
package watch
