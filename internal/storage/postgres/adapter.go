package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/parity-metrics/internal/errors"
	"github.com/kurihiro0119/parity-metrics/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		generated_at TIMESTAMPTZ NOT NULL UNIQUE,
		week_of TEXT NOT NULL DEFAULT '',
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	ALTER TABLE snapshots ADD COLUMN IF NOT EXISTS week_of TEXT NOT NULL DEFAULT '';

	CREATE INDEX IF NOT EXISTS idx_snapshots_generated_at ON snapshots(generated_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate snapshots table: %w", err)
	}
	return nil
}

// SaveSnapshot archives a snapshot, replacing one with the same generatedAt
func (s *postgresStorage) SaveSnapshot(ctx context.Context, snapshot *domain.Snapshot) (*domain.SnapshotSummary, error) {
	record, data, err := storage.NewRecord(snapshot)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode snapshot", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO snapshots (id, generated_at, week_of, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (generated_at) DO UPDATE SET
			week_of = EXCLUDED.week_of,
			data = EXCLUDED.data
		RETURNING id, created_at
	`, record.ID, record.GeneratedAt, record.WeekOf, data, record.CreatedAt).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to save snapshot", err)
	}

	return record, nil
}

// GetSnapshot retrieves one archived snapshot
func (s *postgresStorage) GetSnapshot(ctx context.Context, id string) (*domain.StoredSnapshot, error) {
	var stored domain.StoredSnapshot
	var data string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, generated_at, week_of, data, created_at FROM snapshots WHERE id = $1
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
func (s *postgresStorage) ListSnapshots(ctx context.Context, limit int) ([]*domain.SnapshotSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, generated_at, week_of, created_at FROM snapshots
		ORDER BY generated_at DESC
		LIMIT $1
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
func (s *postgresStorage) LatestSnapshots(ctx context.Context, limit int) ([]*domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM snapshots
		ORDER BY generated_at DESC
		LIMIT $1
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
func (s *postgresStorage) DeleteSnapshot(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = $1`, id)
	if err != nil {
		return apperrors.NewInternalError("failed to delete snapshot", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("snapshot " + id)
	}
	return nil
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}

// sqlLimit maps "no limit" to NULL, which PostgreSQL treats as LIMIT ALL
func sqlLimit(limit int) sql.NullInt64 {
	if limit <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(limit), Valid: true}
}
