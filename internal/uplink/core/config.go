package core

import (
	"time"

	"uplink/internal/uplink/domain"
	"uplink/internal/uplink/transfer"
)

const (
	DefaultMaxFiles             = 10
	DefaultMaxConcurrentUploads = 3
	DefaultCancelGrace          = 30 * time.Second
)

// Config is the orchestrator policy surface. It is read once at
// construction and does not change mid-flight.
type Config struct {
	// MaxFiles caps the number of tasks held at once. Oldest
	// non-uploading tasks are evicted first when new selections exceed it.
	MaxFiles int
	// MaxConcurrentUploads bounds simultaneous transfers. The cap is a
	// property of the orchestrator, not of any single StartUpload call.
	MaxConcurrentUploads int
	// CancelGrace is how long a delivered cancellation may go
	// unacknowledged before the task is failed as un-cancellable.
	CancelGrace time.Duration
	// Policy is the per-file validation policy.
	Policy domain.Policy
	// Destination is where transfers land.
	Destination transfer.Destination
}

// Normalize fills zero values with defaults.
func (c Config) Normalize() Config {
	if c.MaxFiles <= 0 {
		c.MaxFiles = DefaultMaxFiles
	}
	if c.MaxConcurrentUploads <= 0 {
		c.MaxConcurrentUploads = DefaultMaxConcurrentUploads
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = DefaultCancelGrace
	}
	return c
}
