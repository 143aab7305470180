// Package runlock guards named operations against concurrent execution
// within a single process. The pipeline acquires a lock per run kind and
// reports a skipped run instead of queuing when one is already in flight.
package runlock

import (
	"sync"
	"time"
)

// Registry tracks held locks by name.
type Registry struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewRegistry() *Registry {
	return &Registry{held: make(map[string]time.Time)}
}

// TryAcquire takes the named lock if free. It never blocks: the second return
// reports how long the current holder has held it when acquisition fails.
func (r *Registry) TryAcquire(name string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if since, ok := r.held[name]; ok {
		return false, time.Since(since)
	}
	r.held[name] = time.Now()
	return true, 0
}

// Release frees the named lock. Releasing an unheld lock is a no-op.
func (r *Registry) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, name)
}

// Held reports whether the named lock is currently taken.
func (r *Registry) Held(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.held[name]
	return ok
}
