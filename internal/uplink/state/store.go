package state

import (
	"fmt"
	"sync"
	"time"

	"uplink/internal/uplink/domain"
	"uplink/pkg/logger"
)

const publishTimeout = 50 * time.Millisecond

// Store is the ordered, thread-safe collection of upload tasks plus the
// event stream the UI layer subscribes to. Insertion order is preserved
// for rendering; it carries no correctness semantics. Mutate is the
// single serialized write path for a task, so no two concurrent writers
// ever touch the same UploadTask.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*domain.UploadTask
	order []string

	subMu       sync.RWMutex
	subscribers map[chan Event]bool

	logger *logger.Logger
}

func New() *Store {
	s := &Store{
		tasks:       make(map[string]*domain.UploadTask),
		subscribers: make(map[chan Event]bool),
		logger:      logger.WithField("component", "task-store"),
	}

	s.logger.Debug("task store initialized")
	return s
}

// Add inserts a new task and announces it. Ids are unique for the
// store's lifetime; a duplicate is rejected.
func (s *Store) Add(task *domain.UploadTask) error {
	s.mu.Lock()
	if _, exists := s.tasks[task.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("task %s already exists", task.ID)
	}
	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)
	total := len(s.tasks)
	snapshot := task.DeepCopy()
	s.mu.Unlock()

	s.logger.Debug("task added", "taskId", task.ID, "name", task.Descriptor.Name, "totalTasks", total)

	s.Publish(Event{Type: EventTaskAdded, Task: snapshot})
	return nil
}

// Get returns a deep copy of the task to prevent external mutations.
func (s *Store) Get(id string) (*domain.UploadTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[id]
	if !exists {
		return nil, false
	}
	return task.DeepCopy(), true
}

// List returns deep copies of all tasks in insertion order.
func (s *Store) List() []*domain.UploadTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*domain.UploadTask, 0, len(s.order))
	for _, id := range s.order {
		if task, exists := s.tasks[id]; exists {
			tasks = append(tasks, task.DeepCopy())
		}
	}
	return tasks
}

// Mutate applies fn to the live task under the write lock and publishes
// the resulting snapshot. Returns the snapshot, or the error from fn
// unchanged (in which case nothing is published).
func (s *Store) Mutate(id string, fn func(*domain.UploadTask) error) (*domain.UploadTask, error) {
	s.mu.Lock()
	task, exists := s.tasks[id]
	if !exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}

	oldStatus := task.Status
	if err := fn(task); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	snapshot := task.DeepCopy()
	s.mu.Unlock()

	if oldStatus != snapshot.Status {
		s.logger.Debug("task status updated", "taskId", id, "oldStatus", string(oldStatus), "newStatus", string(snapshot.Status))
	}

	s.Publish(Event{Type: EventTaskUpdated, Task: snapshot})
	return snapshot, nil
}

// Remove deletes a task and announces the removal, as EventTaskEvicted
// when the cap forced it out or EventTaskRemoved otherwise.
func (s *Store) Remove(id string, evicted bool) (*domain.UploadTask, bool) {
	s.mu.Lock()
	task, exists := s.tasks[id]
	if !exists {
		s.mu.Unlock()
		return nil, false
	}

	delete(s.tasks, id)
	for i, orderedID := range s.order {
		if orderedID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	snapshot := task.DeepCopy()
	s.mu.Unlock()

	eventType := EventTaskRemoved
	if evicted {
		eventType = EventTaskEvicted
	}
	s.logger.Debug("task removed", "taskId", id, "evicted", evicted)

	s.Publish(Event{Type: eventType, Task: snapshot})
	return snapshot, true
}

// OldestEvictable returns the id of the oldest task not mid-upload.
func (s *Store) OldestEvictable() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if task, exists := s.tasks[id]; exists && task.IsEvictable() {
			return id, true
		}
	}
	return "", false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tasks)
}

// Subscribe creates a new subscription for task events.
// Returns a buffered channel and an unsubscribe function.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.subMu.Lock()
	s.subscribers[ch] = true
	count := len(s.subscribers)
	s.subMu.Unlock()

	s.logger.Debug("new subscriber added", "totalSubscribers", count)

	return ch, func() { s.removeSubscriber(ch) }
}

// removeSubscriber drops and closes a subscription. The close happens
// under the write lock while Publish sends under the read lock, so a
// publisher can never send on a closed channel.
func (s *Store) removeSubscriber(ch chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if _, exists := s.subscribers[ch]; !exists {
		return
	}
	delete(s.subscribers, ch)
	close(ch)

	s.logger.Debug("subscriber removed", "remainingSubscribers", len(s.subscribers))
}

// Publish fans an event out to all subscribers with timeout protection.
// Slow subscribers that do not consume within the timeout are removed.
// The read lock is held across the sends, so an unsubscribe blocks until
// in-flight publishes finish instead of closing a channel under them.
func (s *Store) Publish(event Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		case <-time.After(publishTimeout):
			s.logger.Warn("slow subscriber detected, removing", "timeout", publishTimeout)
			go s.removeSubscriber(ch)
		}
	}
}
