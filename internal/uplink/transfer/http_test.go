package transfer_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uplink/internal/uplink/domain"
	"uplink/internal/uplink/transfer"
	"uplink/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.NewWithConfig(logger.Config{Level: logger.ERROR, Output: io.Discard})
}

func writeTempFile(t *testing.T, name string, size int) domain.Descriptor {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))

	return domain.Descriptor{
		URI:      path,
		Name:     name,
		Size:     int64(size),
		MIMEType: "application/octet-stream",
		Category: "document",
	}
}

func TestHTTPChannel_TransferSucceeds(t *testing.T) {
	var gotMethod, gotPath, gotContentType string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := transfer.NewHTTPChannel(0, testLogger())
	d := writeTempFile(t, "report.pdf", 4096)

	result, err := channel.Transfer(context.Background(), d, transfer.Destination{BaseURL: server.URL}, nil)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/report.pdf", gotPath)
	assert.Equal(t, "application/octet-stream", gotContentType)
	assert.Len(t, gotBody, 4096)
	assert.Equal(t, `"abc123"`, result.ETag)
	assert.Contains(t, result.Location, "/report.pdf")
}

func TestHTTPChannel_ProgressIsMonotonic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := transfer.NewHTTPChannel(0, testLogger())
	d := writeTempFile(t, "large.bin", 256*1024)

	var mu sync.Mutex
	var updates []int64
	onProgress := func(bytesTransferred, totalBytes int64) {
		mu.Lock()
		updates = append(updates, bytesTransferred)
		assert.Equal(t, d.Size, totalBytes)
		mu.Unlock()
	}

	_, err := channel.Transfer(context.Background(), d, transfer.Destination{BaseURL: server.URL}, onProgress)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, updates, "expected at least one progress update")
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i], updates[i-1])
	}
	assert.Equal(t, d.Size, updates[len(updates)-1])
}

func TestHTTPChannel_ServerRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer server.Close()

	channel := transfer.NewHTTPChannel(0, testLogger())
	d := writeTempFile(t, "denied.bin", 128)

	result, err := channel.Transfer(context.Background(), d, transfer.Destination{BaseURL: server.URL}, nil)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, domain.ErrTransferServerRejected), "4xx must map to server rejection, got %v", err)
}

func TestHTTPChannel_ServerErrorIsNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel := transfer.NewHTTPChannel(0, testLogger())
	d := writeTempFile(t, "unlucky.bin", 128)

	_, err := channel.Transfer(context.Background(), d, transfer.Destination{BaseURL: server.URL}, nil)
	assert.True(t, errors.Is(err, domain.ErrTransferNetwork), "5xx must map to network failure, got %v", err)
}

func TestHTTPChannel_UnreachableHost(t *testing.T) {
	channel := transfer.NewHTTPChannel(time.Second, testLogger())
	d := writeTempFile(t, "lost.bin", 128)

	_, err := channel.Transfer(context.Background(), d, transfer.Destination{BaseURL: "http://127.0.0.1:1"}, nil)
	assert.True(t, errors.Is(err, domain.ErrTransferNetwork), "connection refusal must map to network failure, got %v", err)
}

func TestHTTPChannel_MissingFile(t *testing.T) {
	channel := transfer.NewHTTPChannel(0, testLogger())

	d := domain.Descriptor{URI: "/nonexistent/gone.bin", Name: "gone.bin", Size: 10}
	_, err := channel.Transfer(context.Background(), d, transfer.Destination{BaseURL: "http://example.invalid"}, nil)
	assert.True(t, errors.Is(err, domain.ErrTransferNetwork), "unreadable file must map to network failure, got %v", err)
}

func TestHTTPChannel_CancellationMidTransfer(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := transfer.NewHTTPChannel(0, testLogger())
	d := writeTempFile(t, "aborted.bin", 4*1024*1024)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	result, err := channel.Transfer(ctx, d, transfer.Destination{BaseURL: server.URL}, nil)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, domain.ErrCancelled), "aborted transfer must map to cancellation, got %v", err)
}
