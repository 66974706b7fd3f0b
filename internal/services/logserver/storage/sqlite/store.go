package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/heartlog/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/heartlog/internal/services/logserver/storage"
	"github.com/louisbranch/heartlog/internal/services/logserver/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed log entry archiving.
type Store struct {
	sqlDB *sql.DB
}

// Open opens an archive SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendEntries persists one flushed batch in a single transaction.
func (s *Store) AppendEntries(ctx context.Context, entries []storage.ArchivedEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(entries) == 0 {
		return nil
	}
	for i, entry := range entries {
		if strings.TrimSpace(entry.RunID) == "" {
			return fmt.Errorf("entry %d: run id is required", i)
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO log_entries (
	run_id,
	source,
	text,
	received_at
) VALUES (?, ?, ?, ?)
`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		receivedAt := entry.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			entry.RunID,
			entry.Source,
			entry.Text,
			receivedAt.UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// ListEntries lists a run's entries oldest first.
func (s *Store) ListEntries(ctx context.Context, runID string, limit int) ([]storage.ArchivedEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	run_id,
	source,
	text,
	received_at
FROM log_entries
WHERE run_id = ?
ORDER BY id ASC
LIMIT ?
`, strings.TrimSpace(runID), limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := make([]storage.ArchivedEntry, 0)
	for rows.Next() {
		var entry storage.ArchivedEntry
		var receivedAt int64
		if err := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.Source,
			&entry.Text,
			&receivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.ReceivedAt = time.UnixMilli(receivedAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

var _ storage.ArchiveStore = (*Store)(nil)
