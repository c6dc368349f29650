package store

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertSignal persists (or replaces) a signal row and, when contributors is
// non-nil, its contributors row — omitted when the cohort had zero wallets
// with a non-null delta.
func (s *Store) UpsertSignal(sig Signal, contributors *SignalContributors) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "signal_ts"}, {Name: "asset"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"alignment_score", "alignment_trend", "dispersion_index", "exit_cluster_score",
				"allowed_playbook", "risk_mode", "add_exposure", "tighten_stops",
				"wallet_count", "missing_count", "computation_ms",
			}),
		}).Create(&sig).Error; err != nil {
			return fmt.Errorf("failed to upsert signal: %w", err)
		}
		if contributors == nil {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "signal_ts"}, {Name: "asset"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"pct_adder_long", "pct_adder_short", "pct_reducer", "pct_flat",
				"count_adder_long", "count_adder_short", "count_reducer", "count_flat",
			}),
		}).Create(contributors).Error; err != nil {
			return fmt.Errorf("failed to upsert signal contributors: %w", err)
		}
		return nil
	})
}

// RecentAlignmentScores returns up to n most-recent CAS values for an asset,
// strictly before signalTs, newest first — used for the alignment-trend
// computation.
func (s *Store) RecentAlignmentScores(asset string, beforeTs time.Time, n int) ([]float64, error) {
	var rows []Signal
	if err := s.DB.
		Where("asset = ? AND signal_ts < ?", asset, beforeTs).
		Order("signal_ts DESC").
		Limit(n).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read recent alignment scores: %w", err)
	}
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.AlignmentScore)
	}
	return out, nil
}
