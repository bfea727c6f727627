package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
)

// NewRecord prepares the archive row of a snapshot
func NewRecord(snapshot *domain.Snapshot) (*domain.SnapshotSummary, string, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, "", err
	}
	summary := &domain.SnapshotSummary{
		ID:          uuid.New().String(),
		GeneratedAt: snapshot.GeneratedAt.UTC(),
		WeekOf:      snapshot.WeekOf,
		CreatedAt:   time.Now().UTC(),
	}
	return summary, string(data), nil
}

// DecodeRecord decodes an archived snapshot payload
func DecodeRecord(data string) (*domain.Snapshot, error) {
	var s domain.Snapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}
