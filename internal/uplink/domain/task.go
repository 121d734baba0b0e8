package domain

import (
	"fmt"
	"time"
)

type TaskStatus string

const (
	StatusSelected   TaskStatus = "SELECTED"
	StatusValidating TaskStatus = "VALIDATING"
	StatusUploading  TaskStatus = "UPLOADING"
	StatusCompleted  TaskStatus = "COMPLETED"
	StatusFailed     TaskStatus = "FAILED"
	StatusCancelled  TaskStatus = "CANCELLED"
)

// Descriptor identifies the source file of a task. It is assigned at
// selection time and never mutated afterwards.
type Descriptor struct {
	URI      string // Source location (local path for CLI selections)
	Name     string // Display name
	Size     int64  // Declared size in bytes
	MIMEType string // Declared MIME type
	Category string // Content category (e.g. "document", "image")
}

// Verdict is the outcome of checking a descriptor against policy.
// Policy violations are data, not errors.
type Verdict struct {
	IsValid       bool
	ViolatedRules []string
}

// Progress tracks one upload attempt. BytesTransferred is monotonically
// non-decreasing for a given attempt.
type Progress struct {
	BytesTransferred int64
	TotalBytes       int64
	Percentage       float64
	Rate             float64 // bytes per second, instantaneous
	UpdatedAt        time.Time
}

// Result is the terminal artifact reference of a completed upload.
type Result struct {
	TaskID   string
	Location string
	ETag     string
}

// UploadTask is the per-file unit of work. All mutations go through the
// orchestrator's update path; external callers only ever see deep copies.
type UploadTask struct {
	ID         string
	Descriptor Descriptor
	Status     TaskStatus
	Verdict    *Verdict
	Progress   *Progress
	Result     *Result
	Error      string
	CreatedAt  time.Time
}

func NewUploadTask(id string, descriptor Descriptor) *UploadTask {
	return &UploadTask{
		ID:         id,
		Descriptor: descriptor,
		Status:     StatusSelected,
		CreatedAt:  time.Now(),
	}
}

func (t *UploadTask) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed || t.Status == StatusCancelled
}

// IsUploadable reports whether StartUpload may act on this task.
func (t *UploadTask) IsUploadable() bool {
	return t.Status == StatusSelected
}

func (t *UploadTask) IsUploading() bool {
	return t.Status == StatusUploading
}

func (t *UploadTask) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// IsEvictable reports whether the task may be dropped to make room for
// new selections. Tasks mid-upload are never evicted.
func (t *UploadTask) IsEvictable() bool {
	return t.Status != StatusUploading
}

// BeginValidation transitions SELECTED -> VALIDATING.
func (t *UploadTask) BeginValidation() error {
	if t.Status != StatusSelected {
		return fmt.Errorf("%w: cannot validate from %s", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusValidating
	return nil
}

// PassValidation records a passing verdict and returns the task to the
// pre-upload resting state.
func (t *UploadTask) PassValidation(v Verdict) error {
	if t.Status != StatusValidating {
		return fmt.Errorf("%w: cannot pass validation from %s", ErrInvalidTransition, t.Status)
	}
	if !v.IsValid {
		return fmt.Errorf("cannot pass validation with a failing verdict")
	}
	t.Verdict = &v
	t.Status = StatusSelected
	return nil
}

// RejectValidation records a failing verdict. The violated rules become
// the user-visible failure reason, distinguishable from a validator
// crash by Verdict being set.
func (t *UploadTask) RejectValidation(v Verdict, reason string) error {
	if t.Status != StatusValidating {
		return fmt.Errorf("%w: cannot reject validation from %s", ErrInvalidTransition, t.Status)
	}
	if v.IsValid {
		return fmt.Errorf("cannot reject validation with a passing verdict")
	}
	t.Verdict = &v
	t.Status = StatusFailed
	t.Error = reason
	return nil
}

// FailValidation lands the task in FAILED after an unexpected validator
// error. No verdict is recorded, which is how callers tell "validator
// crashed" from "rejected by policy".
func (t *UploadTask) FailValidation(reason string) error {
	if t.Status != StatusValidating {
		return fmt.Errorf("%w: cannot fail validation from %s", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusFailed
	t.Error = reason
	return nil
}

// BeginUpload transitions SELECTED -> UPLOADING and initializes progress
// for the new attempt.
func (t *UploadTask) BeginUpload() error {
	if t.Status != StatusSelected {
		return fmt.Errorf("%w: cannot upload from %s", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusUploading
	t.Progress = &Progress{
		TotalBytes: t.Descriptor.Size,
		UpdatedAt:  time.Now(),
	}
	return nil
}

// ApplyProgress updates the attempt's progress. Regressions in
// bytesTransferred are ignored so observed progress stays monotonic.
func (t *UploadTask) ApplyProgress(bytesTransferred, totalBytes int64) error {
	if t.Status != StatusUploading {
		return fmt.Errorf("%w: progress update while %s", ErrInvalidTransition, t.Status)
	}

	now := time.Now()
	p := t.Progress
	if p == nil {
		p = &Progress{UpdatedAt: now}
		t.Progress = p
	}

	if totalBytes > 0 {
		p.TotalBytes = totalBytes
	}
	if bytesTransferred <= p.BytesTransferred {
		return nil
	}

	if elapsed := now.Sub(p.UpdatedAt).Seconds(); elapsed > 0 {
		p.Rate = float64(bytesTransferred-p.BytesTransferred) / elapsed
	}
	p.BytesTransferred = bytesTransferred
	p.UpdatedAt = now
	p.Percentage = percentage(p.BytesTransferred, p.TotalBytes)
	return nil
}

// Complete transitions UPLOADING -> COMPLETED with the terminal artifact.
func (t *UploadTask) Complete(result Result) error {
	if t.Status != StatusUploading {
		return fmt.Errorf("%w: cannot complete from %s", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusCompleted
	t.Result = &result
	t.Error = ""
	if t.Progress != nil {
		t.Progress.BytesTransferred = t.Progress.TotalBytes
		t.Progress.Percentage = percentage(t.Progress.TotalBytes, t.Progress.TotalBytes)
	}
	return nil
}

// Fail transitions UPLOADING -> FAILED with a human-readable reason.
func (t *UploadTask) Fail(reason string) error {
	if t.Status != StatusUploading {
		return fmt.Errorf("%w: cannot fail from %s", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusFailed
	t.Error = reason
	return nil
}

// CancelAttempt transitions UPLOADING -> CANCELLED. Only called once the
// transfer has acknowledged the abort; the orchestrator never downgrades
// an attempt that settled to COMPLETED.
func (t *UploadTask) CancelAttempt() error {
	if t.Status != StatusUploading {
		return fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusCancelled
	t.Error = "cancelled by user"
	return nil
}

// RejectSelection fails a task that was never admitted to the task list,
// e.g. when the cap is reached and nothing is evictable.
func (t *UploadTask) RejectSelection(reason string) error {
	if t.Status != StatusSelected {
		return fmt.Errorf("%w: cannot reject selection from %s", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusFailed
	t.Error = reason
	return nil
}

// ForceFail moves any non-terminal task to FAILED. Reserved for
// orchestrator-level faults such as a transfer that ignores its abort
// signal past the grace period.
func (t *UploadTask) ForceFail(reason string) error {
	if t.IsTerminal() {
		return fmt.Errorf("%w: cannot force-fail from %s", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusFailed
	t.Error = reason
	return nil
}

// ResetForRetry returns a FAILED or CANCELLED task to SELECTED, dropping
// the stale verdict so validation runs again from scratch.
func (t *UploadTask) ResetForRetry() error {
	if t.Status != StatusFailed && t.Status != StatusCancelled {
		return fmt.Errorf("%w: cannot retry from %s", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusSelected
	t.Verdict = nil
	t.Progress = nil
	t.Result = nil
	t.Error = ""
	return nil
}

// DeepCopy creates a deep copy of the task
func (t *UploadTask) DeepCopy() *UploadTask {
	if t == nil {
		return nil
	}

	cp := &UploadTask{
		ID:         t.ID,
		Descriptor: t.Descriptor,
		Status:     t.Status,
		Error:      t.Error,
		CreatedAt:  t.CreatedAt,
	}

	if t.Verdict != nil {
		verdictCopy := Verdict{
			IsValid:       t.Verdict.IsValid,
			ViolatedRules: append([]string(nil), t.Verdict.ViolatedRules...),
		}
		cp.Verdict = &verdictCopy
	}

	if t.Progress != nil {
		progressCopy := *t.Progress
		cp.Progress = &progressCopy
	}

	if t.Result != nil {
		resultCopy := *t.Result
		cp.Result = &resultCopy
	}

	return cp
}

func percentage(transferred, total int64) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(transferred) / float64(total) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
