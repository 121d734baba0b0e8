package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"uplink/internal/uplink/core"
	"uplink/internal/uplink/domain"
	"uplink/internal/uplink/registry"
	"uplink/internal/uplink/state"
	"uplink/internal/uplink/transfer"
	"uplink/internal/uplink/validation"
	"uplink/pkg/logger"
)

var sendCategory string

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <file> [file...]",
		Short: "Upload a batch of files",
		Long: `Upload one or more files to the configured destination.

Each file is validated against the configured policy, then transferred
with bounded concurrency. Progress is printed per file; the command
exits once every started upload has settled.

Examples:
  uplink send report.pdf
  uplink send --dest https://storage.example.com/bucket *.jpg
  uplink --concurrency 1 send a.bin b.bin c.bin`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSend,
	}

	cmd.Flags().StringVar(&sendCategory, "category", "document", "Content category for policy checks")

	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	descriptors, err := describeFiles(args)
	if err != nil {
		return err
	}

	channel, err := buildChannel(cmd.Context())
	if err != nil {
		return err
	}

	store := state.New()
	orch := core.New(core.Config{
		MaxFiles:             cfg.Uploader.MaxFiles,
		MaxConcurrentUploads: cfg.Uploader.MaxConcurrentUploads,
		CancelGrace:          cfg.Uploader.CancelGrace,
		Policy: domain.Policy{
			MaxFileSizeBytes:  cfg.Policy.MaxFileSizeBytes,
			AllowedMIMETypes:  cfg.Policy.AllowedMIMETypes,
			AllowedCategories: cfg.Uploader.AllowedCategories,
		},
		Destination: transfer.Destination{
			BaseURL:   cfg.Transfer.BaseURL,
			Bucket:    cfg.Transfer.Bucket,
			KeyPrefix: cfg.Transfer.KeyPrefix,
		},
	}, validation.NewPolicyGate(), channel, store, registry.New(), logger.WithField("app", "uplink"))

	events, unsubscribe := orch.Subscribe()
	defer unsubscribe()

	ctx := cmd.Context()
	tasks := orch.AddFiles(ctx, descriptors)

	if err := waitForVerdicts(ctx, orch, tasks); err != nil {
		return err
	}

	for _, task := range orch.Tasks() {
		if task.Status == domain.StatusFailed {
			fmt.Printf("SKIP  %s: %s\n", task.Descriptor.Name, task.Error)
		}
	}

	if !orch.HasUploadable() {
		return fmt.Errorf("no files passed validation")
	}

	orch.StartAll(ctx)

	return watchEvents(ctx, orch, events)
}

// describeFiles builds descriptors from local paths.
func describeFiles(paths []string) ([]domain.Descriptor, error) {
	descriptors := make([]domain.Descriptor, 0, len(paths))

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}

		mimeType := mime.TypeByExtension(filepath.Ext(p))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		descriptors = append(descriptors, domain.Descriptor{
			URI:      p,
			Name:     filepath.Base(p),
			Size:     info.Size(),
			MIMEType: mimeType,
			Category: sendCategory,
		})
	}

	return descriptors, nil
}

func buildChannel(ctx context.Context) (transfer.Channel, error) {
	log := logger.WithField("app", "uplink")

	switch cfg.Transfer.Kind {
	case "s3":
		return transfer.NewS3Channel(ctx, transfer.S3Options{
			Region:    cfg.Transfer.Region,
			Endpoint:  cfg.Transfer.Endpoint,
			AccessKey: cfg.Transfer.AccessKey,
			SecretKey: cfg.Transfer.SecretKey,
		}, log)
	default:
		if cfg.Transfer.BaseURL == "" {
			return nil, fmt.Errorf("no destination configured, set --dest or transfer.baseUrl")
		}
		return transfer.NewHTTPChannel(cfg.Transfer.Timeout, log), nil
	}
}

// waitForVerdicts blocks until every added task has left the validation
// phase.
func waitForVerdicts(ctx context.Context, orch *core.Orchestrator, tasks []*domain.UploadTask) error {
	deadline := time.After(30 * time.Second)

	for {
		pending := 0
		for _, added := range tasks {
			task, ok := orch.Task(added.ID)
			if !ok {
				continue
			}
			if task.Status == domain.StatusValidating || (task.Status == domain.StatusSelected && task.Verdict == nil) {
				pending++
			}
		}
		if pending == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("validation timed out with %d files pending", pending)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// watchEvents renders progress until the batch settles.
func watchEvents(ctx context.Context, orch *core.Orchestrator, events <-chan state.Event) error {
	for {
		select {
		case <-ctx.Done():
			orch.ClearAll()
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				return nil
			}

			switch event.Type {
			case state.EventTaskUpdated:
				printTaskUpdate(event.Task)
			case state.EventBatchFinished:
				fmt.Printf("done: %d uploaded, overall %.0f%%\n", len(event.Results), orch.OverallProgress())
				for _, res := range event.Results {
					fmt.Printf("  %s\n", res.Location)
				}
				return summarizeFailures(orch)
			}
		}
	}
}

func printTaskUpdate(task *domain.UploadTask) {
	if task == nil {
		return
	}

	switch task.Status {
	case domain.StatusUploading:
		if task.Progress != nil {
			fmt.Printf("\r%-30s %6.1f%% (%s/s)", task.Descriptor.Name, task.Progress.Percentage, formatBytes(int64(task.Progress.Rate)))
		}
	case domain.StatusCompleted:
		fmt.Printf("\r%-30s done\n", task.Descriptor.Name)
	case domain.StatusFailed:
		fmt.Printf("\r%-30s failed: %s\n", task.Descriptor.Name, task.Error)
	case domain.StatusCancelled:
		fmt.Printf("\r%-30s cancelled\n", task.Descriptor.Name)
	}
}

func summarizeFailures(orch *core.Orchestrator) error {
	failed := 0
	for _, task := range orch.Tasks() {
		if task.Status == domain.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGTPE"[exp])
}
