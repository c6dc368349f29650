package store

import (
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// GetAlertState reads the durable state machine row for (asset, alertType),
// or nil if this is the first-ever observation.
func (s *Store) GetAlertState(asset, alertType string) (*AlertState, error) {
	var st AlertState
	err := s.DB.Where("asset = ? AND alert_type = ?", asset, alertType).First(&st).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read alert state: %w", err)
	}
	return &st, nil
}

// UpsertAlertState writes the full alert_state row in place.
func (s *Store) UpsertAlertState(st AlertState) error {
	if err := s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "asset"}, {Name: "alert_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_active", "last_triggered_ts", "cooldown_until",
			"pending_playbook", "pending_periods", "previous_playbook", "signal_snapshot",
		}),
	}).Create(&st).Error; err != nil {
		return fmt.Errorf("failed to upsert alert state: %w", err)
	}
	return nil
}

// AppendAlert inserts one append-only alert log row.
func (s *Store) AppendAlert(a Alert) error {
	if err := s.DB.Create(&a).Error; err != nil {
		return fmt.Errorf("failed to append alert: %w", err)
	}
	return nil
}

// CountNonSuppressedAlerts counts non-suppressed alerts for an asset, across
// all alert types, within the rolling window ending at now — the quota
// check scoped per asset.
func (s *Store) CountNonSuppressedAlerts(asset string, since, now time.Time) (int64, error) {
	var count int64
	if err := s.DB.Model(&Alert{}).
		Where("asset = ? AND suppressed = ? AND alert_ts > ? AND alert_ts <= ?",
			asset, false, since, now).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count recent alerts: %w", err)
	}
	return count, nil
}
