package download

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	errLimitReached  = errors.New("concurrency limit reached")
	errAlreadyActive = errors.New("download already active")
)

// entry tracks one in-flight download. The canceled flag distinguishes a
// user cancel from a pause when the executor observes context cancellation.
type entry struct {
	cancel   context.CancelFunc
	canceled atomic.Bool
}

// registry is the authoritative set of in-flight downloads. Admission checks
// the concurrency limit under the same lock as insertion, so the active set
// can never exceed the limit even with concurrent Start calls.
type registry struct {
	mu     sync.RWMutex
	active map[uuid.UUID]*entry
}

func newRegistry() *registry {
	return &registry{active: make(map[uuid.UUID]*entry)}
}

// tryAdd admits id into the active set, enforcing the limit atomically.
func (r *registry) tryAdd(id uuid.UUID, cancel context.CancelFunc, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[id]; ok {
		return errAlreadyActive
	}
	if len(r.active) >= limit {
		return errLimitReached
	}
	r.active[id] = &entry{cancel: cancel}
	return nil
}

func (r *registry) get(id uuid.UUID) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.active[id]
	return e, ok
}

func (r *registry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}

func (r *registry) contains(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[id]
	return ok
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

func (r *registry) ids() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.active))
	for id := range r.active {
		out = append(out, id)
	}
	return out
}
