// -----------------------------------------------------------------------
// Local storage - desk preferences and the last confirmed snapshot
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrNoSnapshot is returned when no snapshot has been cached yet
var ErrNoSnapshot = errors.New("no cached snapshot")

// CachedSnapshot is the last raw read payload that partitioned successfully
type CachedSnapshot struct {
	Raw       []byte    `json:"raw"`
	Records   int       `json:"records"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SnapshotStorage keeps the last good snapshot so a restarted desk has something to show
// before the store answers
type SnapshotStorage interface {
	// SaveSnapshot replaces the cached snapshot
	SaveSnapshot(ctx context.Context, snapshot CachedSnapshot) error

	// LoadSnapshot returns the cached snapshot, or ErrNoSnapshot
	LoadSnapshot(ctx context.Context) (*CachedSnapshot, error)
}

// StorageManager - composite interface for local storage
type StorageManager interface {
	KeyValueStorage() KeyValueStorage
	SnapshotStorage() SnapshotStorage
	Close() error
}
