package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"uplink/internal/uplink/domain"
	"uplink/internal/uplink/registry"
	"uplink/internal/uplink/state"
	"uplink/internal/uplink/transfer"
	"uplink/internal/uplink/validation"
	"uplink/pkg/logger"
)

// errNoOp marks a mutation skipped because the task was not in the
// expected status. Callers treat it as success.
var errNoOp = errors.New("no-op")

// Orchestrator owns the task collection and drives each task through
// validation and transfer. It is the single writer for task state; the
// UI layer consumes snapshots via the store's event stream and never
// touches the gate or the channel directly.
type Orchestrator struct {
	cfg      Config
	gate     validation.Gate
	channel  transfer.Channel
	store    *state.Store
	registry *registry.Registry

	// sem bounds simultaneous transfers across all StartUpload calls.
	sem *semaphore.Weighted

	// Batch accounting: ids of attempts currently between UPLOADING and
	// their terminal state. When the set drains, BatchFinished fires with
	// the completed results gathered since the last batch event.
	attempts     map[string]struct{}
	batchResults []domain.Result
	batchMu      sync.Mutex

	newID func() string

	logger *logger.Logger
}

func New(cfg Config, gate validation.Gate, channel transfer.Channel, store *state.Store, reg *registry.Registry, log *logger.Logger) *Orchestrator {
	cfg = cfg.Normalize()

	o := &Orchestrator{
		cfg:      cfg,
		gate:     gate,
		channel:  channel,
		store:    store,
		registry: reg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentUploads)),
		attempts: make(map[string]struct{}),
		newID:    uuid.NewString,
		logger:   log.WithField("component", "upload-orchestrator"),
	}

	o.logger.Debug("orchestrator initialized",
		"maxFiles", cfg.MaxFiles,
		"maxConcurrentUploads", cfg.MaxConcurrentUploads,
		"cancelGrace", cfg.CancelGrace)

	return o
}

// AddFiles creates one task per descriptor, enforces the task cap by
// evicting oldest non-uploading tasks, and schedules asynchronous
// validation. The resulting snapshots are returned synchronously;
// verdicts arrive later via the event stream. A file that cannot be
// admitted because every held task is mid-upload is returned FAILED and
// announced as evicted rather than dropped silently.
func (o *Orchestrator) AddFiles(ctx context.Context, descriptors []domain.Descriptor) []*domain.UploadTask {
	out := make([]*domain.UploadTask, 0, len(descriptors))

	for _, d := range descriptors {
		task := domain.NewUploadTask(o.newID(), d)

		for o.store.Len() >= o.cfg.MaxFiles {
			victimID, ok := o.store.OldestEvictable()
			if !ok {
				break
			}
			o.store.Remove(victimID, true)
			o.logger.Info("task evicted to admit new selection", "evictedTaskId", victimID, "newTaskId", task.ID)
		}

		if o.store.Len() >= o.cfg.MaxFiles {
			// every held task is mid-upload
			_ = task.RejectSelection("upload queue is full")
			o.store.Publish(state.Event{Type: state.EventTaskEvicted, Task: task.DeepCopy()})
			o.logger.Warn("selection rejected, queue full with active uploads", "taskId", task.ID, "name", d.Name)
			out = append(out, task.DeepCopy())
			continue
		}

		if err := o.store.Add(task); err != nil {
			o.logger.Error("failed to add task", "taskId", task.ID, "error", err)
			continue
		}
		out = append(out, task.DeepCopy())

		go o.validate(ctx, task.ID)
	}

	return out
}

// validate drives one task through the gate. Policy rejections and
// validator crashes both land in FAILED but stay distinguishable: only
// a rejection carries a verdict.
func (o *Orchestrator) validate(ctx context.Context, id string) {
	snapshot, err := o.store.Mutate(id, func(t *domain.UploadTask) error {
		return t.BeginValidation()
	})
	if err != nil {
		o.logger.Debug("validation skipped", "taskId", id, "error", err)
		return
	}

	verdict, err := o.gate.Validate(ctx, snapshot.Descriptor, o.cfg.Policy)
	if err != nil {
		reason := fmt.Sprintf("validation unavailable: %v", err)
		if _, mErr := o.store.Mutate(id, func(t *domain.UploadTask) error {
			return t.FailValidation(reason)
		}); mErr != nil {
			o.logger.Debug("validator failure not recorded", "taskId", id, "error", mErr)
		}
		return
	}

	if !verdict.IsValid {
		reason := fmt.Sprintf("%v: %s", domain.ErrValidationRejected, strings.Join(verdict.ViolatedRules, "; "))
		if _, mErr := o.store.Mutate(id, func(t *domain.UploadTask) error {
			return t.RejectValidation(verdict, reason)
		}); mErr != nil {
			o.logger.Debug("verdict not recorded", "taskId", id, "error", mErr)
		}
		return
	}

	if _, mErr := o.store.Mutate(id, func(t *domain.UploadTask) error {
		return t.PassValidation(verdict)
	}); mErr != nil {
		o.logger.Debug("verdict not recorded", "taskId", id, "error", mErr)
	}
}

// StartAll starts every task currently in SELECTED.
func (o *Orchestrator) StartAll(ctx context.Context) {
	for _, task := range o.store.List() {
		if task.IsUploadable() {
			if err := o.StartUpload(ctx, task.ID); err != nil {
				o.logger.Warn("failed to start upload", "taskId", task.ID, "error", err)
			}
		}
	}
}

// StartUpload moves one SELECTED task to UPLOADING and hands it to the
// bounded worker pool. The cancellation handle is registered inside the
// same store critical section as the status transition, before any
// suspension point, so a cancel issued immediately after StartUpload is
// never lost to a race. Not-selected tasks are a no-op.
func (o *Orchestrator) StartUpload(ctx context.Context, id string) error {
	attemptCtx, cancel := context.WithCancel(ctx)

	snapshot, err := o.store.Mutate(id, func(t *domain.UploadTask) error {
		if !t.IsUploadable() {
			return errNoOp
		}
		if rErr := o.registry.Register(id, cancel); rErr != nil {
			return rErr
		}
		if uErr := t.BeginUpload(); uErr != nil {
			o.registry.Release(id)
			return uErr
		}
		return nil
	})
	if err != nil {
		cancel()
		if errors.Is(err, errNoOp) {
			o.logger.Debug("start skipped, task not uploadable", "taskId", id)
			return nil
		}
		if errors.Is(err, domain.ErrDuplicateRegistration) {
			// registry invariant violation: a bug, fatal to this task only
			o.logger.Error("BUG: duplicate cancellation handle", "taskId", id, "error", err)
			_, _ = o.store.Mutate(id, func(t *domain.UploadTask) error {
				return t.ForceFail("internal error: duplicate upload attempt")
			})
			return err
		}
		return err
	}

	o.noteAttemptStarted(id)
	o.logger.Info("upload started", "taskId", id, "name", snapshot.Descriptor.Name, "size", snapshot.Descriptor.Size)

	go o.runTransfer(attemptCtx, cancel, id, snapshot.Descriptor)
	return nil
}

// runTransfer is the worker body for one attempt. The semaphore bounds
// concurrent transfers; an abort while queued settles as cancelled
// without ever entering the transfer phase.
func (o *Orchestrator) runTransfer(ctx context.Context, cancel context.CancelFunc, id string, d domain.Descriptor) {
	defer cancel()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.settle(id, nil, fmt.Errorf("%w: %v", domain.ErrCancelled, err))
		return
	}

	result, err := o.channel.Transfer(ctx, d, o.cfg.Destination, o.progressFunc(id))
	o.sem.Release(1)

	o.settle(id, result, err)
}

// settle maps the transfer's actual outcome to the task's terminal
// status. The outcome always wins over a pending cancellation request:
// a transfer that completed just before the abort was delivered stays
// COMPLETED. The terminal transition and the handle release happen in
// the same store critical section, mirroring registration at start, so
// no observer ever sees an UPLOADING task without a live handle or a
// settled task with one.
func (o *Orchestrator) settle(id string, result *domain.Result, err error) {
	apply := func(fn func(*domain.UploadTask) error) error {
		_, e := o.store.Mutate(id, func(t *domain.UploadTask) error {
			if tErr := fn(t); tErr != nil {
				return tErr
			}
			o.registry.Release(id)
			return nil
		})
		return e
	}

	var completed *domain.Result
	var mErr error

	switch {
	case err == nil && result != nil:
		result.TaskID = id
		mErr = apply(func(t *domain.UploadTask) error {
			return t.Complete(*result)
		})
		if mErr == nil {
			completed = result
		}
	case errors.Is(err, domain.ErrCancelled):
		mErr = apply(func(t *domain.UploadTask) error {
			return t.CancelAttempt()
		})
	default:
		if err == nil {
			err = fmt.Errorf("%w: transfer returned no result", domain.ErrTransferNetwork)
		}
		mErr = apply(func(t *domain.UploadTask) error {
			return t.Fail(err.Error())
		})
	}

	if mErr != nil {
		// task was removed mid-flight or already force-failed; the handle
		// must not outlive the attempt either way
		o.registry.Release(id)
		o.logger.Debug("settlement not recorded", "taskId", id, "error", mErr)
	}

	o.accountSettled(id, completed)
}

// progressFunc builds the per-attempt progress callback. Updates are
// serialized through the store's mutate path; updates arriving after the
// attempt settled are dropped by the state machine.
func (o *Orchestrator) progressFunc(id string) transfer.ProgressFunc {
	return func(bytesTransferred, totalBytes int64) {
		if _, err := o.store.Mutate(id, func(t *domain.UploadTask) error {
			return t.ApplyProgress(bytesTransferred, totalBytes)
		}); err != nil {
			o.logger.Debug("progress update dropped", "taskId", id, "error", err)
		}
	}
}

// Cancel requests cancellation of the task's in-flight transfer and
// reports whether a cancellation was actually delivered. The task is
// not CANCELLED until the transfer acknowledges the abort; a delivered
// cancel that stays unacknowledged past the grace period fails the task
// as un-cancellable.
func (o *Orchestrator) Cancel(id string) bool {
	settled, delivered := o.registry.Cancel(id)
	if delivered {
		go o.watchCancellation(id, settled)
	}
	return delivered
}

func (o *Orchestrator) watchCancellation(id string, settled <-chan struct{}) {
	select {
	case <-settled:
		return
	case <-time.After(o.cfg.CancelGrace):
	}

	_, err := o.store.Mutate(id, func(t *domain.UploadTask) error {
		if !t.IsUploading() {
			return errNoOp
		}
		if fErr := t.ForceFail("transfer did not acknowledge cancellation within grace period"); fErr != nil {
			return fErr
		}
		o.registry.Release(id)
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrTaskNotFound) {
			// attempt settled inside the grace period after all
			return
		}
		// task removed mid-flight; the handle and the batch slot are
		// still owed
		o.registry.Release(id)
	}

	o.logger.Error("transfer ignored cancellation, handle leaked", "taskId", id, "grace", o.cfg.CancelGrace)
	o.accountSettled(id, nil)
}

// Remove cancels the task if uploading, then deletes it. Safe on any
// status; removing an unknown id is a no-op.
func (o *Orchestrator) Remove(id string) {
	o.Cancel(id)
	o.store.Remove(id, false)
}

// ClearCompleted removes every COMPLETED task.
func (o *Orchestrator) ClearCompleted() {
	for _, task := range o.store.List() {
		if task.IsCompleted() {
			o.store.Remove(task.ID, false)
		}
	}
}

// ClearAll cancels every in-flight task, then removes everything.
func (o *Orchestrator) ClearAll() {
	for _, task := range o.store.List() {
		if task.IsUploading() {
			o.Cancel(task.ID)
		}
		o.store.Remove(task.ID, false)
	}
}

// Retry returns a FAILED or CANCELLED task to SELECTED and re-runs
// validation from scratch, discarding the stale verdict.
func (o *Orchestrator) Retry(ctx context.Context, id string) error {
	if _, err := o.store.Mutate(id, func(t *domain.UploadTask) error {
		return t.ResetForRetry()
	}); err != nil {
		return err
	}

	go o.validate(ctx, id)
	return nil
}

// Task returns a snapshot of one task.
func (o *Orchestrator) Task(id string) (*domain.UploadTask, bool) {
	return o.store.Get(id)
}

// Tasks returns snapshots of all tasks in selection order.
func (o *Orchestrator) Tasks() []*domain.UploadTask {
	return o.store.List()
}

// Subscribe exposes the store's event stream to the UI layer.
func (o *Orchestrator) Subscribe() (<-chan state.Event, func()) {
	return o.store.Subscribe()
}

// HasUploadable reports whether any task is ready to start.
func (o *Orchestrator) HasUploadable() bool {
	for _, task := range o.store.List() {
		if task.IsUploadable() {
			return true
		}
	}
	return false
}

// HasCompleted reports whether any task finished successfully.
func (o *Orchestrator) HasCompleted() bool {
	for _, task := range o.store.List() {
		if task.IsCompleted() {
			return true
		}
	}
	return false
}

// OverallProgress aggregates progress across tasks currently uploading
// or completed, as a percentage clamped to [0, 100]. Tasks that never
// started contribute to neither numerator nor denominator.
func (o *Orchestrator) OverallProgress() float64 {
	var transferred, total int64

	for _, task := range o.store.List() {
		switch task.Status {
		case domain.StatusUploading:
			if task.Progress != nil {
				transferred += task.Progress.BytesTransferred
				total += task.Progress.TotalBytes
			}
		case domain.StatusCompleted:
			size := task.Descriptor.Size
			if task.Progress != nil && task.Progress.TotalBytes > 0 {
				size = task.Progress.TotalBytes
			}
			transferred += size
			total += size
		}
	}

	if total <= 0 {
		return 0
	}
	pct := float64(transferred) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (o *Orchestrator) noteAttemptStarted(id string) {
	o.batchMu.Lock()
	o.attempts[id] = struct{}{}
	o.batchMu.Unlock()
}

// accountSettled retires one attempt from the current batch. The batch
// event fires strictly after the per-task terminal transition it
// summarizes, and only once every attempt has settled.
func (o *Orchestrator) accountSettled(id string, completed *domain.Result) {
	o.batchMu.Lock()
	if _, live := o.attempts[id]; !live {
		o.batchMu.Unlock()
		return
	}
	delete(o.attempts, id)
	if completed != nil {
		o.batchResults = append(o.batchResults, *completed)
	}

	var results []domain.Result
	finished := len(o.attempts) == 0
	if finished {
		results = o.batchResults
		o.batchResults = nil
	}
	o.batchMu.Unlock()

	if finished {
		o.logger.Info("all uploads finished", "completed", len(results))
		o.store.Publish(state.Event{Type: state.EventBatchFinished, Results: results})
	}
}
