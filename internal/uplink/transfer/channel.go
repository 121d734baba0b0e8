package transfer

import (
	"context"
	"io"

	"uplink/internal/uplink/domain"
)

// Destination names where a transfer lands. HTTP channels use BaseURL,
// S3 channels use Bucket/KeyPrefix.
type Destination struct {
	BaseURL   string
	Bucket    string
	KeyPrefix string
}

// ProgressFunc receives byte-level progress for a single attempt.
// Invocations for one attempt are sequential and non-decreasing.
type ProgressFunc func(bytesTransferred, totalBytes int64)

// Channel moves the bytes for a single task. Implementations must return
// domain.ErrCancelled, domain.ErrTransferNetwork or
// domain.ErrTransferServerRejected (wrapped) so the orchestrator can map
// the outcome to the correct terminal status.
type Channel interface {
	Transfer(ctx context.Context, d domain.Descriptor, dest Destination, onProgress ProgressFunc) (*domain.Result, error)
}

// progressReader wraps the upload body and reports consumed bytes to the
// attempt's progress callback as the transport reads them.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	onProgress ProgressFunc
}

func newProgressReader(r io.Reader, total int64, onProgress ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, onProgress: onProgress}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		if pr.onProgress != nil {
			pr.onProgress(pr.read, pr.total)
		}
	}
	return n, err
}
