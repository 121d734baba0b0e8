package domain_test

import (
	"strings"
	"testing"

	"uplink/internal/uplink/domain"
)

func newTask() *domain.UploadTask {
	return domain.NewUploadTask("task-1", domain.Descriptor{
		URI:      "/tmp/report.pdf",
		Name:     "report.pdf",
		Size:     1000,
		MIMEType: "application/pdf",
		Category: "document",
	})
}

func TestUploadTask_ValidationPasses(t *testing.T) {
	task := newTask()

	if err := task.BeginValidation(); err != nil {
		t.Fatalf("BeginValidation: %v", err)
	}
	if task.Status != domain.StatusValidating {
		t.Errorf("expected VALIDATING, got %v", task.Status)
	}

	if err := task.PassValidation(domain.Verdict{IsValid: true}); err != nil {
		t.Fatalf("PassValidation: %v", err)
	}
	if task.Status != domain.StatusSelected {
		t.Errorf("expected SELECTED after passing validation, got %v", task.Status)
	}
	if task.Verdict == nil || !task.Verdict.IsValid {
		t.Error("expected passing verdict to be recorded")
	}
}

func TestUploadTask_ValidationRejected(t *testing.T) {
	task := newTask()

	_ = task.BeginValidation()
	verdict := domain.Verdict{IsValid: false, ViolatedRules: []string{"file exceeds maximum size"}}
	if err := task.RejectValidation(verdict, "file exceeds maximum size"); err != nil {
		t.Fatalf("RejectValidation: %v", err)
	}

	if task.Status != domain.StatusFailed {
		t.Errorf("expected FAILED, got %v", task.Status)
	}
	if task.Verdict == nil || task.Verdict.IsValid {
		t.Error("expected failing verdict to be recorded")
	}
	if !strings.Contains(task.Error, "maximum size") {
		t.Errorf("expected rule description in error, got %q", task.Error)
	}
}

func TestUploadTask_ValidatorCrashDistinguishable(t *testing.T) {
	task := newTask()

	_ = task.BeginValidation()
	if err := task.FailValidation("validation unavailable: connection refused"); err != nil {
		t.Fatalf("FailValidation: %v", err)
	}

	if task.Status != domain.StatusFailed {
		t.Errorf("expected FAILED, got %v", task.Status)
	}
	// a crash records no verdict, which is how callers tell it apart
	// from a policy rejection
	if task.Verdict != nil {
		t.Error("expected no verdict after validator crash")
	}
	if task.Error == "" {
		t.Error("expected human-readable error")
	}
}

func TestUploadTask_IllegalTransitions(t *testing.T) {
	task := newTask()

	if err := task.Complete(domain.Result{}); err == nil {
		t.Error("expected error completing from SELECTED")
	}
	if err := task.Fail("x"); err == nil {
		t.Error("expected error failing from SELECTED")
	}
	if err := task.CancelAttempt(); err == nil {
		t.Error("expected error cancelling from SELECTED")
	}
	if err := task.ResetForRetry(); err == nil {
		t.Error("expected error retrying from SELECTED")
	}
	if err := task.ApplyProgress(10, 100); err == nil {
		t.Error("expected error applying progress while SELECTED")
	}
}

func TestUploadTask_CompletedIsImmutable(t *testing.T) {
	task := newTask()
	_ = task.BeginUpload()
	_ = task.Complete(domain.Result{TaskID: task.ID, Location: "https://cdn/report.pdf"})

	if err := task.Fail("late failure"); err == nil {
		t.Error("expected error failing a COMPLETED task")
	}
	if err := task.CancelAttempt(); err == nil {
		t.Error("expected error cancelling a COMPLETED task")
	}
	if err := task.ForceFail("watchdog"); err == nil {
		t.Error("expected ForceFail to refuse a terminal task")
	}
	if task.Status != domain.StatusCompleted {
		t.Errorf("status changed to %v", task.Status)
	}
}

func TestUploadTask_ResultAndErrorExclusive(t *testing.T) {
	completed := newTask()
	_ = completed.BeginUpload()
	_ = completed.Complete(domain.Result{Location: "https://cdn/x"})
	if completed.Result == nil {
		t.Error("completed task must carry a result")
	}
	if completed.Error != "" {
		t.Errorf("completed task must not carry an error, got %q", completed.Error)
	}

	failed := newTask()
	_ = failed.BeginUpload()
	_ = failed.Fail("network error")
	if failed.Result != nil {
		t.Error("failed task must not carry a result")
	}
	if failed.Error == "" {
		t.Error("failed task must carry a human-readable error")
	}
}

func TestUploadTask_ProgressMonotonicAndClamped(t *testing.T) {
	task := newTask()
	_ = task.BeginUpload()

	steps := []int64{0, 400, 1000}
	for _, b := range steps {
		if err := task.ApplyProgress(b, 1000); err != nil {
			t.Fatalf("ApplyProgress(%d): %v", b, err)
		}
	}
	if task.Progress.Percentage != 100 {
		t.Errorf("expected 100%%, got %v", task.Progress.Percentage)
	}

	// regression is ignored, not applied
	if err := task.ApplyProgress(300, 1000); err != nil {
		t.Fatalf("ApplyProgress regression: %v", err)
	}
	if task.Progress.BytesTransferred != 1000 {
		t.Errorf("expected bytesTransferred to stay at 1000, got %d", task.Progress.BytesTransferred)
	}

	// over-reporting clamps to 100
	if err := task.ApplyProgress(2000, 1000); err != nil {
		t.Fatalf("ApplyProgress overshoot: %v", err)
	}
	if task.Progress.Percentage != 100 {
		t.Errorf("expected clamp to 100%%, got %v", task.Progress.Percentage)
	}
}

func TestUploadTask_CompleteSnapsProgressToTotal(t *testing.T) {
	task := newTask()
	_ = task.BeginUpload()
	_ = task.ApplyProgress(400, 1000)

	if err := task.Complete(domain.Result{Location: "https://cdn/x"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if task.Progress.BytesTransferred != 1000 || task.Progress.Percentage != 100 {
		t.Errorf("expected progress snapped to total, got %d (%v%%)",
			task.Progress.BytesTransferred, task.Progress.Percentage)
	}
}

func TestUploadTask_ResetForRetryDropsStaleState(t *testing.T) {
	task := newTask()
	_ = task.BeginValidation()
	_ = task.RejectValidation(domain.Verdict{IsValid: false, ViolatedRules: []string{"too big"}}, "too big")

	if err := task.ResetForRetry(); err != nil {
		t.Fatalf("ResetForRetry: %v", err)
	}
	if task.Status != domain.StatusSelected {
		t.Errorf("expected SELECTED, got %v", task.Status)
	}
	if task.Verdict != nil || task.Error != "" || task.Progress != nil || task.Result != nil {
		t.Error("expected stale verdict, error, progress and result cleared")
	}
}

func TestUploadTask_DeepCopy(t *testing.T) {
	task := newTask()
	_ = task.BeginValidation()
	_ = task.PassValidation(domain.Verdict{IsValid: true, ViolatedRules: nil})
	_ = task.BeginUpload()
	_ = task.ApplyProgress(500, 1000)

	cp := task.DeepCopy()

	cp.Progress.BytesTransferred = 999
	cp.Verdict.IsValid = false
	cp.Descriptor.Name = "other"

	if task.Progress.BytesTransferred != 500 {
		t.Error("copy shares progress with original")
	}
	if !task.Verdict.IsValid {
		t.Error("copy shares verdict with original")
	}
	if task.Descriptor.Name != "report.pdf" {
		t.Error("copy shares descriptor with original")
	}
}
