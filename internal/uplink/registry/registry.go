package registry

import (
	"context"
	"fmt"
	"sync"

	"uplink/internal/uplink/domain"
	"uplink/pkg/logger"
)

// handle couples an attempt's abort signal with a settle channel closed
// when the transfer resolves, one way or the other.
type handle struct {
	cancel  context.CancelFunc
	settled chan struct{}
}

// Registry maps task identity to the live cancellation handle of its
// in-flight transfer. It is the only place a live handle may be held:
// a task mid-upload has exactly one entry, every other task has none.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*handle
	logger  *logger.Logger
}

func New() *Registry {
	return &Registry{
		handles: make(map[string]*handle),
		logger:  logger.WithField("component", "cancellation-registry"),
	}
}

// Register stores the cancellation handle for a starting transfer.
// A second registration for the same id is a programmer error and fails
// with domain.ErrDuplicateRegistration.
func (r *Registry) Register(taskID string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[taskID]; exists {
		return fmt.Errorf("%w: task %s", domain.ErrDuplicateRegistration, taskID)
	}

	r.handles[taskID] = &handle{
		cancel:  cancel,
		settled: make(chan struct{}),
	}

	r.logger.Debug("handle registered", "taskId", taskID, "liveHandles", len(r.handles))
	return nil
}

// Cancel delivers the abort signal if a live handle exists, returning
// the attempt's settle channel along with whether a cancellation was
// actually delivered. Both come from the same handle lookup, so the
// channel always belongs to the attempt that received the signal.
// Cancelling a task with no live handle is a no-op: the transfer may
// have already settled.
func (r *Registry) Cancel(taskID string) (<-chan struct{}, bool) {
	r.mu.Lock()
	h, exists := r.handles[taskID]
	r.mu.Unlock()

	if !exists {
		r.logger.Debug("cancel requested for task with no live handle", "taskId", taskID)
		return nil, false
	}

	h.cancel()
	r.logger.Debug("cancellation delivered", "taskId", taskID)
	return h.settled, true
}

// Release drops the handle when a transfer settles. Called
// unconditionally on success, failure and cancellation so the map never
// accumulates stale handles.
func (r *Registry) Release(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, exists := r.handles[taskID]
	if !exists {
		return
	}

	close(h.settled)
	delete(r.handles, taskID)

	r.logger.Debug("handle released", "taskId", taskID, "liveHandles", len(r.handles))
}

// Settled returns a channel closed when the task's current attempt
// settles. Returns false if no attempt is live.
func (r *Registry) Settled(taskID string) (<-chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, exists := r.handles[taskID]
	if !exists {
		return nil, false
	}
	return h.settled, true
}

// Has reports whether a live handle exists for the task.
func (r *Registry) Has(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.handles[taskID]
	return exists
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}
