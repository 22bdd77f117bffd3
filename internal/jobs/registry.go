package jobs

import (
	"fmt"
	"sync"
)

// Registry is a catalog of named work functions. Registrations arriving over
// the HTTP API or from config files carry a work name, not code; the registry
// resolves that name to a RunFunc wired up at startup.
type Registry struct {
	mu    sync.RWMutex
	works map[string]RunFunc
}

func NewRegistry() *Registry {
	return &Registry{
		works: make(map[string]RunFunc),
	}
}

func (r *Registry) Register(name string, fn RunFunc) error {
	if name == "" {
		return fmt.Errorf("%w: empty work name", ErrInvalidJob)
	}
	if fn == nil {
		return fmt.Errorf("%w: nil run func for work %q", ErrInvalidJob, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.works[name]; exists {
		return fmt.Errorf("%w: %s", ErrWorkExists, name)
	}

	r.works[name] = fn
	return nil
}

func (r *Registry) MustRegister(name string, fn RunFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(name string) (RunFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, exists := r.works[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrWorkNotFound, name)
	}

	return fn, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.works))
	for name := range r.works {
		names = append(names, name)
	}
	return names
}
