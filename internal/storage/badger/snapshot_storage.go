package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/portico/internal/interfaces"
)

// snapshotKey is the single slot the last good snapshot lives in
const snapshotKey = "desk.snapshot.last"

// SnapshotStorage implements the SnapshotStorage interface for Badger
type SnapshotStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSnapshotStorage creates a new SnapshotStorage instance
func NewSnapshotStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SnapshotStorage {
	return &SnapshotStorage{db: db, logger: logger}
}

func (s *SnapshotStorage) SaveSnapshot(ctx context.Context, snapshot interfaces.CachedSnapshot) error {
	if err := s.db.Store().Upsert(snapshotKey, &snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	s.logger.Debug().Int("records", snapshot.Records).Msg("Cached desk snapshot")
	return nil
}

func (s *SnapshotStorage) LoadSnapshot(ctx context.Context) (*interfaces.CachedSnapshot, error) {
	var snapshot interfaces.CachedSnapshot
	err := s.db.Store().Get(snapshotKey, &snapshot)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return &snapshot, nil
}
