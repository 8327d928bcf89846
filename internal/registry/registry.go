package registry

import (
	"sort"
	"sync"
)

// Option configures a Registry.
type Option[H any] func(*Registry[H])

// WithRelease installs a hook called with the previous handle whenever an
// identifier is overwritten or the registry is cleared.
func WithRelease[H any](fn func(id string, old H)) Option[H] {
	return func(r *Registry[H]) { r.release = fn }
}

// WithOverwriteHook is told about every identifier that replaced a live entry.
func WithOverwriteHook[H any](fn func(id string)) Option[H] {
	return func(r *Registry[H]) { r.onOverwrite = fn }
}

// Registry maps opaque identifiers to script-side handles for one context.
// Re-registering an identifier replaces the old handle.
type Registry[H any] struct {
	mu      sync.RWMutex
	entries map[string]H

	alive       func() bool
	release     func(id string, old H)
	onOverwrite func(id string)
}

// New creates an empty registry. alive reports whether the owning script
// environment can still accept registrations; nil means always.
func New[H any](alive func() bool, opts ...Option[H]) *Registry[H] {
	r := &Registry[H]{
		entries: make(map[string]H),
		alive:   alive,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores handle under id, replacing any existing entry. It returns
// false and changes nothing when the owning environment is not alive.
func (r *Registry[H]) Register(id string, handle H) bool {
	if r.alive != nil && !r.alive() {
		return false
	}

	r.mu.Lock()
	old, existed := r.entries[id]
	r.entries[id] = handle
	r.mu.Unlock()

	if existed {
		if r.onOverwrite != nil {
			r.onOverwrite(id)
		}
		if r.release != nil {
			r.release(id, old)
		}
	}
	return true
}

// Find returns the handle for id. A miss is normal and not an error.
func (r *Registry[H]) Find(id string) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.entries[id]
	return h, ok
}

// Remove drops a single entry.
func (r *Registry[H]) Remove(id string) bool {
	r.mu.Lock()
	old, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok && r.release != nil {
		r.release(id, old)
	}
	return ok
}

// Clear drops every entry. Calling it on an empty registry is a no-op.
func (r *Registry[H]) Clear() {
	r.mu.Lock()
	old := r.entries
	r.entries = make(map[string]H)
	r.mu.Unlock()

	if r.release != nil {
		for id, h := range old {
			r.release(id, h)
		}
	}
}

// Len returns the number of live entries.
func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry[H]) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
