package hotswap

import (
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

type instance[T any] struct {
	value      T
	generation int
}

// Handle is a stable reference to the live instance of a reloadable type.
// Reads are lock-free; the session repoints the handle on every reload.
type Handle[T any] struct {
	id      string
	session *Session[T]
	cur     atomic.Pointer[instance[T]]
	closed  atomic.Bool
}

func newHandle[T any](s *Session[T]) *Handle[T] {
	return &Handle[T]{
		id:      newHandleID(),
		session: s,
	}
}

// newHandleID derives an identity that is also a valid backend identifier.
func newHandleID() string {
	return "instance_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ID returns the identity assigned at construction.
func (h *Handle[T]) ID() string {
	return h.id
}

// Get returns the current instance, or the zero T when nothing is bound.
func (h *Handle[T]) Get() T {
	if cur := h.cur.Load(); cur != nil {
		return cur.value
	}
	var zero T
	return zero
}

// Bound reports whether the handle points at an instance.
func (h *Handle[T]) Bound() bool {
	return h.cur.Load() != nil
}

// Generation returns the generation number of the bound instance, 0 if none.
func (h *Handle[T]) Generation() int {
	if cur := h.cur.Load(); cur != nil {
		return cur.generation
	}
	return 0
}

// Clone returns a new registered handle sharing the current instance. The
// two diverge on the next reload.
func (h *Handle[T]) Clone() *Handle[T] {
	c := newHandle(h.session)
	c.cur.Store(h.cur.Load())
	if !h.closed.Load() {
		h.session.register(c, false)
	}
	return c
}

// Move returns a handle that takes over the identity and instance of h. h is
// left empty and unregistered.
func (h *Handle[T]) Move() *Handle[T] {
	m := &Handle[T]{id: h.id, session: h.session}
	m.cur.Store(h.cur.Swap(nil))
	if h.closed.Swap(true) {
		m.closed.Store(true)
		return m
	}
	h.session.adopt(h, m)
	return m
}

// Close unregisters the handle and releases its backend instance. The last
// instance stays readable through Get.
func (h *Handle[T]) Close() {
	if h.closed.Swap(true) {
		return
	}
	h.session.unregister(h, true)
}

func (h *Handle[T]) rebind(v T, generation int) {
	h.cur.Store(&instance[T]{value: v, generation: generation})
}
