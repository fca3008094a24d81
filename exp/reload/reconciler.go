package reload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/chenyanchen/hotswap"
)

// Spec declares one function slot.
type Spec struct {
	Name    string          `json:"name" yaml:"name"`
	Path    string          `json:"path" yaml:"path"`
	Options hotswap.Options `json:"options" yaml:"options"`
}

// Result describes the slot changes of one reconciliation.
type Result struct {
	Added   []string // Slot exists only in new specs.
	Removed []string // Slot exists only in old specs.
	Reused  []string // Slot is reused (spec unchanged).
	Rebuilt []string // Slot is rebuilt (added or spec changed).
	Closed  []string // Old slots closed after switch (removed + rebuilt).
}

type entry[F any] struct {
	hash string
	slot *hotswap.Func[F]
}

// Reconciler keeps the active set of function slots and applies incremental
// switches on new specs.
type Reconciler[F any] struct {
	registry *hotswap.Registry

	mu      sync.RWMutex
	current map[string]entry[F]
	order   []string
}

func New[F any](registry *hotswap.Registry, initial []Spec) (*Reconciler[F], error) {
	if registry == nil {
		return nil, fmt.Errorf("new reconciler: registry is nil")
	}
	r := &Reconciler[F]{
		registry: registry,
		current:  make(map[string]entry[F]),
	}
	if len(initial) == 0 {
		return r, nil
	}
	if _, err := r.Reconcile(context.Background(), initial); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the active slot called name.
func (r *Reconciler[F]) Get(name string) (*hotswap.Func[F], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.current[name]
	return e.slot, ok
}

// Names returns the active slot names in declaration order.
func (r *Reconciler[F]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Reconcile switches the active set to specs. When a rebuilt slot fails to
// compile its first version the switch is abandoned and the active set is
// left untouched.
func (r *Reconciler[F]) Reconcile(ctx context.Context, specs []Spec) (Result, error) {
	hashes := make(map[string]string, len(specs))
	order := make([]string, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" || spec.Path == "" {
			return Result{}, fmt.Errorf("reconcile: spec %q needs a name and a path", spec.Name)
		}
		if _, dup := hashes[spec.Name]; dup {
			return Result{}, fmt.Errorf("reconcile: duplicate function %q", spec.Name)
		}
		hash, err := hashSpec(spec)
		if err != nil {
			return Result{}, fmt.Errorf("hash spec %s: %w", spec.Name, err)
		}
		hashes[spec.Name] = hash
		order = append(order, spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var result Result
	next := make(map[string]entry[F], len(specs))
	for _, spec := range specs {
		old, ok := r.current[spec.Name]
		if ok && old.hash == hashes[spec.Name] {
			next[spec.Name] = old
			result.Reused = append(result.Reused, spec.Name)
			continue
		}
		if !ok {
			result.Added = append(result.Added, spec.Name)
		}
		next[spec.Name] = entry[F]{
			hash: hashes[spec.Name],
			slot: hotswap.NewFunc[F](r.registry, spec.Name, spec.Path, spec.Options),
		}
		result.Rebuilt = append(result.Rebuilt, spec.Name)
	}

	for _, name := range result.Rebuilt {
		err := ctx.Err()
		if err == nil && !next[name].slot.Bound() {
			err = fmt.Errorf("function %s has no compiled version", name)
		}
		if err != nil {
			for _, n := range result.Rebuilt {
				next[n].slot.Close()
			}
			return Result{}, fmt.Errorf("prewarm rebuilt functions: %w", err)
		}
	}

	for _, name := range r.order {
		if _, ok := next[name]; !ok {
			result.Removed = append(result.Removed, name)
			result.Closed = append(result.Closed, name)
			continue
		}
		if slices.Contains(result.Rebuilt, name) {
			result.Closed = append(result.Closed, name)
		}
	}

	old := r.current
	r.current = next
	r.order = order

	for _, name := range result.Closed {
		old[name].slot.Close()
	}
	return result, nil
}

// Close stops recompiling every active slot.
func (r *Reconciler[F]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.order {
		r.current[name].slot.Close()
	}
}

func hashSpec(spec Spec) (string, error) {
	options, err := json.Marshal(spec.Options)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(spec.Name))
	h.Write([]byte{'\n'})
	h.Write([]byte(spec.Path))
	h.Write([]byte{'\n'})
	h.Write(options)
	return hex.EncodeToString(h.Sum(nil)), nil
}
