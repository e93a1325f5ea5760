package exposure

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry holds one Window per tracked exposure instance.
type Registry struct {
	mu      sync.RWMutex
	windows map[string]*Window
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{windows: make(map[string]*Window)}
}

// Track registers w and returns its generated exposure ID.
func (r *Registry) Track(w *Window) string {
	id := uuid.New().String()
	r.mu.Lock()
	r.windows[id] = w
	r.mu.Unlock()
	return id
}

// Get returns the window registered under id.
func (r *Registry) Get(id string) (*Window, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.windows[id]
	return w, ok
}

// Untrack drops the window for id; the window itself is left untouched so
// a caller may still export it one last time.
func (r *Registry) Untrack(id string) (*Window, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[id]
	delete(r.windows, id)
	return w, ok
}

// IDs returns the tracked exposure IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.windows))
	for id := range r.windows {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of tracked windows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.windows)
}
