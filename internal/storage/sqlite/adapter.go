package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/parity-metrics/internal/errors"
	"github.com/kurihiro0119/parity-metrics/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	// Archives created before weekly labels lack the week_of column
	var tableSQL string
	err := s.db.QueryRowContext(ctx, `
		SELECT sql FROM sqlite_master
		WHERE type='table' AND name='snapshots' AND sql NOT LIKE '%week_of%'
	`).Scan(&tableSQL)

	if err == nil {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE snapshots ADD COLUMN week_of TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add week_of column: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		generated_at TIMESTAMP NOT NULL UNIQUE,
		week_of TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_generated_at ON snapshots(generated_at);
	`

	_, err = s.db.ExecContext(ctx, schema)
	return err
}

// SaveSnapshot archives a snapshot, replacing one with the same generatedAt
func (s *sqliteStorage) SaveSnapshot(ctx context.Context, snapshot *domain.Snapshot) (*domain.SnapshotSummary, error) {
	record, data, err := storage.NewRecord(snapshot)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode snapshot", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, generated_at, week_of, data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(generated_at) DO UPDATE SET
			week_of = excluded.week_of,
			data = excluded.data
	`, record.ID, record.GeneratedAt, record.WeekOf, data, record.CreatedAt)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to save snapshot", err)
	}

	// On conflict the existing row keeps its id
	err = s.db.QueryRowContext(ctx, `
		SELECT id, created_at FROM snapshots WHERE generated_at = ?
	`, record.GeneratedAt).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read saved snapshot", err)
	}

	return record, nil
}

// GetSnapshot retrieves one archived snapshot
func (s *sqliteStorage) GetSnapshot(ctx context.Context, id string) (*domain.StoredSnapshot, error) {
	var stored domain.StoredSnapshot
	var data string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, generated_at, week_of, data, created_at FROM snapshots WHERE id = ?
	`, id).Scan(&stored.ID, &stored.GeneratedAt, &stored.WeekOf, &data, &stored.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("snapshot " + id)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get snapshot", err)
	}

	stored.Snapshot, err = storage.DecodeRecord(data)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to decode snapshot", err)
	}
	return &stored, nil
}

// ListSnapshots lists archived snapshots, newest first
func (s *sqliteStorage) ListSnapshots(ctx context.Context, limit int) ([]*domain.SnapshotSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, generated_at, week_of, created_at FROM snapshots
		ORDER BY generated_at DESC
		LIMIT ?
	`, sqlLimit(limit))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list snapshots", err)
	}
	defer rows.Close()

	var summaries []*domain.SnapshotSummary
	for rows.Next() {
		var summary domain.SnapshotSummary
		if err := rows.Scan(&summary.ID, &summary.GeneratedAt, &summary.WeekOf, &summary.CreatedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, &summary)
	}
	return summaries, rows.Err()
}

// LatestSnapshots decodes the newest snapshots, newest first
func (s *sqliteStorage) LatestSnapshots(ctx context.Context, limit int) ([]*domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM snapshots
		ORDER BY generated_at DESC
		LIMIT ?
	`, sqlLimit(limit))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load snapshots", err)
	}
	defer rows.Close()

	var snapshots []*domain.Snapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		snap, err := storage.DecodeRecord(data)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to decode snapshot", err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// DeleteSnapshot removes one archived snapshot
func (s *sqliteStorage) DeleteSnapshot(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return apperrors.NewInternalError("failed to delete snapshot", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("snapshot " + id)
	}
	return nil
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

// sqlLimit maps "no limit" to SQLite's -1
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
