package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks in-flight executions so outer layers can look them up and
// cancel them by execution id. Cancellation is cooperative: the engine checks
// its context between grid cells.
type Registry struct {
	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{cancels: make(map[uuid.UUID]context.CancelFunc)}
}

func (r *Registry) add(id uuid.UUID, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[id] = cancel
}

func (r *Registry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, id)
}

// Cancel aborts a running execution. Returns false if the execution is not
// in flight (unknown id or already finished).
func (r *Registry) Cancel(id uuid.UUID) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Running lists the ids of executions currently in flight.
func (r *Registry) Running() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.cancels))
	for id := range r.cancels {
		ids = append(ids, id)
	}
	return ids
}
