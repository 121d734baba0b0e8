package state_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"uplink/internal/uplink/domain"
	"uplink/internal/uplink/state"
)

func makeTask(id string) *domain.UploadTask {
	return domain.NewUploadTask(id, domain.Descriptor{
		URI:  "/tmp/" + id,
		Name: id + ".bin",
		Size: 100,
	})
}

func TestStore_AddAndGet(t *testing.T) {
	store := state.New()

	task := makeTask("task-1")
	if err := store.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, exists := store.Get("task-1")
	if !exists {
		t.Fatal("expected task to exist")
	}
	if got.ID != "task-1" || got.Descriptor.Name != "task-1.bin" {
		t.Errorf("unexpected task: %+v", got)
	}

	// snapshots are copies, not live state
	got.Status = domain.StatusCompleted
	again, _ := store.Get("task-1")
	if again.Status != domain.StatusSelected {
		t.Error("Get returned live state instead of a copy")
	}

	if _, exists = store.Get("missing"); exists {
		t.Error("expected missing task to not exist")
	}
}

func TestStore_DuplicateIDRejected(t *testing.T) {
	store := state.New()

	if err := store.Add(makeTask("dup")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add(makeTask("dup")); err == nil {
		t.Error("expected duplicate id to be rejected")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 task, got %d", store.Len())
	}
}

func TestStore_ListPreservesInsertionOrder(t *testing.T) {
	store := state.New()

	for i := 0; i < 5; i++ {
		if err := store.Add(makeTask(fmt.Sprintf("task-%d", i))); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	tasks := store.List()
	if len(tasks) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(tasks))
	}
	for i, task := range tasks {
		if want := fmt.Sprintf("task-%d", i); task.ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, task.ID)
		}
	}
}

func TestStore_MutateSerializesWritesAndPublishes(t *testing.T) {
	store := state.New()
	_ = store.Add(makeTask("task-1"))

	events, unsubscribe := store.Subscribe()
	defer unsubscribe()

	snapshot, err := store.Mutate("task-1", func(task *domain.UploadTask) error {
		return task.BeginValidation()
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if snapshot.Status != domain.StatusValidating {
		t.Errorf("expected VALIDATING snapshot, got %v", snapshot.Status)
	}

	select {
	case event := <-events:
		if event.Type != state.EventTaskUpdated {
			t.Errorf("expected TASK_UPDATED, got %v", event.Type)
		}
		if event.Task.Status != domain.StatusValidating {
			t.Errorf("event carries stale status %v", event.Task.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published for mutation")
	}
}

func TestStore_MutateUnknownTask(t *testing.T) {
	store := state.New()

	_, err := store.Mutate("ghost", func(task *domain.UploadTask) error { return nil })
	if err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestStore_MutateErrorPublishesNothing(t *testing.T) {
	store := state.New()
	_ = store.Add(makeTask("task-1"))

	events, unsubscribe := store.Subscribe()
	defer unsubscribe()

	_, err := store.Mutate("task-1", func(task *domain.UploadTask) error {
		return fmt.Errorf("rejected")
	})
	if err == nil {
		t.Fatal("expected fn error to propagate")
	}

	select {
	case event := <-events:
		t.Errorf("unexpected event %v after failed mutation", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStore_RemoveAnnouncesEviction(t *testing.T) {
	store := state.New()
	_ = store.Add(makeTask("task-1"))
	_ = store.Add(makeTask("task-2"))

	events, unsubscribe := store.Subscribe()
	defer unsubscribe()

	if _, ok := store.Remove("task-1", true); !ok {
		t.Fatal("expected removal to succeed")
	}

	select {
	case event := <-events:
		if event.Type != state.EventTaskEvicted {
			t.Errorf("expected TASK_EVICTED, got %v", event.Type)
		}
		if event.Task.ID != "task-1" {
			t.Errorf("expected evicted task-1, got %s", event.Task.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no eviction event")
	}

	if store.Len() != 1 {
		t.Errorf("expected 1 task left, got %d", store.Len())
	}
	if _, ok := store.Remove("task-1", false); ok {
		t.Error("expected second removal to be a no-op")
	}
}

func TestStore_OldestEvictableSkipsUploading(t *testing.T) {
	store := state.New()

	first := makeTask("task-1")
	_ = store.Add(first)
	_ = store.Add(makeTask("task-2"))

	if _, err := store.Mutate("task-1", func(task *domain.UploadTask) error {
		return task.BeginUpload()
	}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	id, ok := store.OldestEvictable()
	if !ok {
		t.Fatal("expected an evictable task")
	}
	if id != "task-2" {
		t.Errorf("expected task-2 (task-1 is mid-upload), got %s", id)
	}
}

func TestStore_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	store := state.New()
	_ = store.Add(makeTask("task-1"))

	// unsubscribing while other goroutines publish must never panic with
	// a send on a closed channel
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				events, unsubscribe := store.Subscribe()
				_, _ = store.Mutate("task-1", func(task *domain.UploadTask) error {
					return nil
				})
				unsubscribe()
				for range events {
				}
			}
		}()
	}
	wg.Wait()
}

func TestStore_UnsubscribeClosesChannel(t *testing.T) {
	store := state.New()

	events, unsubscribe := store.Subscribe()
	unsubscribe()

	if _, open := <-events; open {
		t.Error("expected channel closed after unsubscribe")
	}

	// publishing after unsubscribe must not panic or block
	_ = store.Add(makeTask("task-1"))
}
