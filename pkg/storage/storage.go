package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solariscontrol/solaris/pkg/types"
)

var (
	// ErrNotFound is returned by Get when nothing is stored at the path.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPath is returned for empty or malformed paths.
	ErrInvalidPath = errors.New("invalid path")
)

// Snapshot is the value of a watched path at some point in time.
type Snapshot struct {
	Path string
	// Value is the stored JSON, or nil when the path has no value.
	Value json.RawMessage
}

// Exists reports whether the path had a value.
func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Decode unmarshals the snapshot value into dst.
func (s Snapshot) Decode(dst any) error {
	if s.Value == nil {
		return fmt.Errorf("%s: %w", s.Path, ErrNotFound)
	}
	if err := json.Unmarshal(s.Value, dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", s.Path, err)
	}
	return nil
}

// Store is a key-value store addressed by slash separated paths such as
// "app/settings". Values are stored as JSON.
type Store interface {
	// Get decodes the value at path into dst. It returns ErrNotFound if
	// nothing is stored there.
	Get(ctx context.Context, path string, dst any) error
	// Set replaces the value at path.
	Set(ctx context.Context, path string, value any) error
	// Watch sends the current value of path and then every change until ctx
	// is done, at which point the channel is closed.
	Watch(ctx context.Context, path string) (<-chan Snapshot, error)

	// Lifecycle
	Close() error
}

// Database is a Store that also keeps telemetry and decision history.
type Database interface {
	Store

	// InsertTelemetry stores a sample keyed by its timestamp.
	InsertTelemetry(ctx context.Context, sample types.Telemetry) error
	// GetTelemetryHistory returns samples in [start, end) ordered by time.
	GetTelemetryHistory(ctx context.Context, start, end time.Time) ([]types.Telemetry, error)
	// GetLatestTelemetry returns the newest sample or nil if there is none.
	GetLatestTelemetry(ctx context.Context) (*types.Telemetry, error)

	InsertDecision(ctx context.Context, record types.DecisionRecord) error
	GetDecisionHistory(ctx context.Context, start, end time.Time) ([]types.DecisionRecord, error)
}
