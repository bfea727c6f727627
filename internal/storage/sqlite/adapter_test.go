package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/parity-metrics/internal/errors"
	"github.com/kurihiro0119/parity-metrics/internal/storage"
)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func snapshotAt(day int, merged int64) *domain.Snapshot {
	return &domain.Snapshot{
		GeneratedAt: time.Date(2025, 1, day, 12, 0, 0, 0, time.UTC),
		WeekOf:      time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
		FixPrs:      domain.PRMetrics{Total: 10, Merged: merged, MergeRate: float64(merged) * 10},
		ByLanguage: map[string]domain.LanguageMetrics{
			"python": {FixPrs: &domain.PRMetrics{Total: 4, Merged: 2, MergeRate: 50}},
		},
	}
}

func TestSaveAndGetSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	saved, err := store.SaveSnapshot(ctx, snapshotAt(6, 7))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "2025-01-06", saved.WeekOf)

	got, err := store.GetSnapshot(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.True(t, got.GeneratedAt.Equal(saved.GeneratedAt))
	assert.Equal(t, int64(7), got.Snapshot.FixPrs.Merged)

	lm, ok := got.Snapshot.Language("python")
	require.True(t, ok)
	assert.Equal(t, 50.0, lm.FixPrs.MergeRate)
}

func TestSaveSnapshotReplacesSameGeneratedAt(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	first, err := store.SaveSnapshot(ctx, snapshotAt(6, 3))
	require.NoError(t, err)
	second, err := store.SaveSnapshot(ctx, snapshotAt(6, 9))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	list, err := store.ListSnapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := store.GetSnapshot(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.Snapshot.FixPrs.Merged)
}

func TestListAndLatestSnapshotsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	for _, day := range []int{13, 6, 20} {
		_, err := store.SaveSnapshot(ctx, snapshotAt(day, int64(day%10)))
		require.NoError(t, err)
	}

	list, err := store.ListSnapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "2025-01-20", list[0].WeekOf)
	assert.Equal(t, "2025-01-13", list[1].WeekOf)
	assert.Equal(t, "2025-01-06", list[2].WeekOf)

	latest, err := store.LatestSnapshots(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "2025-01-20", latest[0].WeekOf)
	assert.Equal(t, "2025-01-13", latest[1].WeekOf)
}

func TestGetSnapshotNotFound(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.GetSnapshot(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeleteSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	saved, err := store.SaveSnapshot(ctx, snapshotAt(6, 1))
	require.NoError(t, err)

	require.NoError(t, store.DeleteSnapshot(ctx, saved.ID))
	assert.True(t, apperrors.IsNotFound(store.DeleteSnapshot(ctx, saved.ID)))

	list, err := store.ListSnapshots(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStorage(t)
	assert.NoError(t, store.Migrate(context.Background()))
}
