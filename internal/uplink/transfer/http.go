package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"uplink/internal/uplink/domain"
	"uplink/pkg/logger"
)

const DefaultHTTPTimeout = 5 * time.Minute

// Ensure HTTPChannel implements Channel
var _ Channel = (*HTTPChannel)(nil)

// HTTPChannel PUTs file content to a presigned-style URL derived from
// the destination base URL and the file name.
type HTTPChannel struct {
	client *http.Client
	logger *logger.Logger
}

func NewHTTPChannel(timeout time.Duration, log *logger.Logger) *HTTPChannel {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPChannel{
		client: &http.Client{Timeout: timeout},
		logger: log.WithField("component", "http-channel"),
	}
}

func (c *HTTPChannel) Transfer(ctx context.Context, d domain.Descriptor, dest Destination, onProgress ProgressFunc) (*domain.Result, error) {
	target, err := url.JoinPath(dest.BaseURL, url.PathEscape(d.Name))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid destination: %v", domain.ErrTransferNetwork, err)
	}

	file, err := os.Open(d.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransferNetwork, err)
	}
	defer file.Close()

	body := newProgressReader(file, d.Size, onProgress)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransferNetwork, err)
	}
	req.ContentLength = d.Size
	contentType := d.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransferNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Debug("transfer finished", "name", d.Name, "status", resp.StatusCode)
		return &domain.Result{
			Location: target,
			ETag:     resp.Header.Get("ETag"),
		}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: %s", domain.ErrTransferServerRejected, resp.Status)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrTransferNetwork, resp.Status)
	}
}
