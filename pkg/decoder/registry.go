package decoder

import (
	"fmt"
	"sync"
)

// Registry orders decoder backends by preference.
type Registry struct {
	probeOnce sync.Once

	mu        sync.RWMutex
	backends  []Backend
	supported map[string]bool
}

// NewRegistry creates a registry with backends in priority order.
func NewRegistry(backends ...Backend) *Registry {
	return &Registry{backends: append([]Backend(nil), backends...)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry: ffplay, then dump files in
// the working directory.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(&FFplay{}, &Dump{})
	})
	return defaultRegistry
}

// probe checks every backend once and moves the first supported one to
// the front.
func (r *Registry) probe() {
	r.probeOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.supported = make(map[string]bool, len(r.backends))
		first := -1
		for i, b := range r.backends {
			ok := b.Supported()
			r.supported[b.Name()] = ok
			if ok && first < 0 {
				first = i
			}
		}
		if first > 0 {
			b := r.backends[first]
			copy(r.backends[1:first+1], r.backends[:first])
			r.backends[0] = b
		}
	})
}

// Backends returns the candidates in their probed order.
func (r *Registry) Backends() []Backend {
	r.probe()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Backend(nil), r.backends...)
}

// Supported reports the probe result for the named backend.
func (r *Registry) Supported(name string) bool {
	r.probe()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.supported[name]
}

// Select returns the backend named preferred when it is supported, and
// the front backend otherwise.
func (r *Registry) Select(preferred string) (Backend, error) {
	r.probe()
	r.mu.RLock()
	defer r.mu.RUnlock()

	if preferred != "" {
		for _, b := range r.backends {
			if b.Name() == preferred {
				if r.supported[preferred] {
					return b, nil
				}
				break
			}
		}
	}
	if len(r.backends) == 0 || !r.supported[r.backends[0].Name()] {
		return nil, ErrNoDecoder
	}
	return r.backends[0], nil
}

// Describe renders the registry for status output.
func (r *Registry) Describe() []string {
	r.probe()
	r.mu.RLock()
	defer r.mu.RUnlock()

	lines := make([]string, 0, len(r.backends))
	for _, b := range r.backends {
		status := "unsupported"
		if r.supported[b.Name()] {
			status = "supported"
		}
		lines = append(lines, fmt.Sprintf("%s (%s)", b.Name(), status))
	}
	return lines
}
