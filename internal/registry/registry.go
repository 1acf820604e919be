// Package registry maps platforms to their implementations. Registries are
// filled once during startup and only read afterwards.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/types"
)

// ErrNotRegistered means startup wiring never registered the platform.
var ErrNotRegistered = errors.New("platform not registered")

// Registry holds one implementation per platform.
type Registry[T any] struct {
	name  string
	mu    sync.RWMutex
	impls map[types.Platform]T
}

// New returns an empty registry. name only appears in errors and logs.
func New[T any](name string) *Registry[T] {
	return &Registry[T]{name: name, impls: make(map[types.Platform]T)}
}

// Register binds impl to p, replacing any earlier binding.
func (r *Registry[T]) Register(p types.Platform, impl T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.impls[p]; exists {
		logrus.WithFields(logrus.Fields{"registry": r.name, "platform": p}).Warn("Replacing registered implementation")
	}
	r.impls[p] = impl
}

// Lookup returns the implementation for p.
func (r *Registry[T]) Lookup(p types.Platform) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.impls[p]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: %w: %s", r.name, ErrNotRegistered, p)
	}
	return impl, nil
}

// Platforms lists the registered platforms in name order.
func (r *Registry[T]) Platforms() []types.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Platform, 0, len(r.impls))
	for p := range r.impls {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
