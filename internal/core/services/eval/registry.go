package eval

import (
	"fmt"
	"sort"
	"sync"

	apperrors "evalforge/pkg/errors"
)

// Registry is a thread-safe, name-keyed lookup for adapters, scorers, and
// sinks. Components register themselves at process start; the engine and
// task manager resolve them dynamically by name at run time, mirroring
// the duck-typed plugin registries the Python original relied on.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

func (r *Registry[T]) Register(name string, item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[name] = item
}

func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[name]
	return v, ok
}

func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for n := range r.items {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Registries bundles the three plugin registries the engine resolves
// adapters, scorers, and sinks from.
type Registries struct {
	Adapters *Registry[Adapter]
	Scorers  *Registry[Scorer]
	Sinks    *Registry[Sink]
}

func NewRegistries() *Registries {
	return &Registries{
		Adapters: NewRegistry[Adapter](),
		Scorers:  NewRegistry[Scorer](),
		Sinks:    NewRegistry[Sink](),
	}
}

func (r *Registries) ResolveAdapter(name string) (Adapter, error) {
	a, ok := r.Adapters.Get(name)
	if !ok {
		return nil, apperrors.NewErrorWithCode(apperrors.CodeAdapterNotRegistered, fmt.Sprintf("adapter %q is not registered", name))
	}
	return a, nil
}

func (r *Registries) ResolveScorers(names []string) ([]Scorer, error) {
	scorers := make([]Scorer, 0, len(names))
	for _, name := range names {
		s, ok := r.Scorers.Get(name)
		if !ok {
			return nil, apperrors.NewErrorWithCode(apperrors.CodeScorerNotRegistered, fmt.Sprintf("scorer %q is not registered", name))
		}
		scorers = append(scorers, s)
	}
	return scorers, nil
}

func (r *Registries) ResolveSinks(names []string) ([]Sink, error) {
	sinks := make([]Sink, 0, len(names))
	for _, name := range names {
		s, ok := r.Sinks.Get(name)
		if !ok {
			return nil, apperrors.NewErrorWithCode(apperrors.CodeSinkNotRegistered, fmt.Sprintf("sink %q is not registered", name))
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
