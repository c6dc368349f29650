package store

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertSnapshots writes a full cycle's snapshot rows inside one
// transaction, replacing any existing rows for the same (snapshot_ts,
// wallet_id, asset) key — idempotent re-runs of the same snapshot_ts leave
// the table in the same state as a single run.
func (s *Store) UpsertSnapshots(rows []WalletSnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	const batchSize = 500
	return s.DB.Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(rows); start += batchSize {
			end := start + batchSize
			if end > len(rows) {
				end = len(rows)
			}
			batch := rows[start:end]
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "snapshot_ts"}, {Name: "wallet_id"}, {Name: "asset"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"szi", "entry_px", "liq_px", "leverage", "margin_used", "is_dirty",
				}),
			}).Create(&batch).Error; err != nil {
				return fmt.Errorf("failed to upsert snapshot batch: %w", err)
			}
		}
		return nil
	})
}

// SnapshotsInWindow returns the latest non-dirty snapshot per wallet whose
// snapshot_ts falls in (after, atOrBefore] — the half-open window the
// aggregator pulls for both the current and previous 5-minute windows.
func (s *Store) SnapshotsInWindow(asset string, after, atOrBefore time.Time) (map[string]WalletSnapshot, error) {
	var rows []WalletSnapshot
	if err := s.DB.
		Where("asset = ? AND is_dirty = ? AND snapshot_ts > ? AND snapshot_ts <= ?", asset, false, after, atOrBefore).
		Order("snapshot_ts ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read snapshots in window: %w", err)
	}
	latest := make(map[string]WalletSnapshot, len(rows))
	for _, r := range rows {
		latest[r.WalletID] = r // ASC order means the last write per wallet wins
	}
	return latest, nil
}

// SziHistory returns the absolute signed sizes for an asset over the
// trailing window, used by the classifier's epsilon computation (median of
// |szi| over the last 24h).
func (s *Store) SziHistory(asset string, since time.Time) ([]float64, error) {
	var rows []WalletSnapshot
	if err := s.DB.
		Where("asset = ? AND is_dirty = ? AND snapshot_ts > ?", asset, false, since).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read szi history: %w", err)
	}
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		abs := r.Szi
		if abs < 0 {
			abs = -abs
		}
		out = append(out, abs)
	}
	return out, nil
}
