package storage

import (
	"context"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
)

// Storage is the abstract interface for the snapshot archive
type Storage interface {
	// SaveSnapshot archives a snapshot and returns its record. A snapshot
	// with the same generatedAt replaces the existing one.
	SaveSnapshot(ctx context.Context, snapshot *domain.Snapshot) (*domain.SnapshotSummary, error)

	// GetSnapshot retrieves one archived snapshot
	GetSnapshot(ctx context.Context, id string) (*domain.StoredSnapshot, error)

	// ListSnapshots lists archived snapshots, newest first. limit <= 0 means all.
	ListSnapshots(ctx context.Context, limit int) ([]*domain.SnapshotSummary, error)

	// LatestSnapshots decodes the newest snapshots, newest first
	LatestSnapshots(ctx context.Context, limit int) ([]*domain.Snapshot, error)

	// DeleteSnapshot removes one archived snapshot
	DeleteSnapshot(ctx context.Context, id string) error

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
