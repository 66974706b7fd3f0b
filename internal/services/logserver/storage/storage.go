// Package storage defines the optional archive of flushed log entries.
package storage

import (
	"context"
	"time"
)

// ArchivedEntry is one log entry persisted by the archive.
type ArchivedEntry struct {
	ID         int64
	RunID      string
	Source     string
	Text       string
	ReceivedAt time.Time
}

// ArchiveStore persists flushed log entry batches.
type ArchiveStore interface {
	AppendEntries(ctx context.Context, entries []ArchivedEntry) error
	ListEntries(ctx context.Context, runID string, limit int) ([]ArchivedEntry, error)
}
