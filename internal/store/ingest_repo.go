package store

import (
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// UpsertIngestRun records (or replaces) the run row for a snapshot_ts —
// re-running the same cycle replaces it in place.
func (s *Store) UpsertIngestRun(run IngestRun) error {
	if err := s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "snapshot_ts"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "wallets_expected", "wallets_succeeded", "wallets_failed",
			"rows_expected", "rows_written", "coverage_pct", "duration_ms", "error",
		}),
	}).Create(&run).Error; err != nil {
		return fmt.Errorf("failed to upsert ingest run: %w", err)
	}
	return nil
}

// AppendIngestHealth monotonically appends a new health row — never
// updated in place, readers use the most recent by HealthTs.
func (s *Store) AppendIngestHealth(health IngestHealth) error {
	if err := s.DB.Create(&health).Error; err != nil {
		return fmt.Errorf("failed to append ingest health: %w", err)
	}
	return nil
}

// LatestIngestHealth returns the most recent health row, or (nil, nil) if
// none has ever been recorded.
func (s *Store) LatestIngestHealth() (*IngestHealth, error) {
	var h IngestHealth
	err := s.DB.Order("health_ts DESC, id DESC").First(&h).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read latest ingest health: %w", err)
	}
	return &h, nil
}

// MinutesSinceLastSuccess returns how long it has been since the last
// successful ingestion cycle, or a very large duration if there has never
// been one.
func MinutesSinceLastSuccess(health *IngestHealth, now time.Time) time.Duration {
	if health == nil || health.LastSuccessSnapshotTs == nil {
		return 24 * time.Hour
	}
	return now.Sub(*health.LastSuccessSnapshotTs)
}
