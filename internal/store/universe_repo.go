package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CurrentUniverse returns the live cohort, ordered by rank.
func (s *Store) CurrentUniverse() ([]WalletUniverseCurrent, error) {
	var rows []WalletUniverseCurrent
	if err := s.DB.Order("rank ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read current universe: %w", err)
	}
	return rows, nil
}

// UniverseMember is the caller-facing shape for a freshly-ranked wallet,
// decoupled from the GORM row so callers don't need to know about RunID.
type UniverseMember struct {
	WalletID     string
	Rank         int
	Pnl30d       float64
	Roi30d       float64
	AccountValue *float64
}

// ReplaceUniverse atomically records a new universe-refresh run, inserts its
// member rows, and replaces the "current universe" table — all within a
// single transaction. It returns the entered/exited wallet ids computed
// against the previous current universe.
func (s *Store) ReplaceUniverse(runTs time.Time, members []UniverseMember) (entered, exited []string, err error) {
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var previous []WalletUniverseCurrent
		if dbErr := tx.Find(&previous).Error; dbErr != nil {
			return fmt.Errorf("failed to read previous universe: %w", dbErr)
		}
		entered, exited = diffUniverse(previous, members)

		enteredJSON, _ := json.Marshal(entered)
		exitedJSON, _ := json.Marshal(exited)

		run := WalletUniverseRun{
			RunTs:       runTs,
			Status:      "success",
			ValidRows:   len(members),
			EnteredJSON: string(enteredJSON),
			ExitedJSON:  string(exitedJSON),
		}
		if dbErr := tx.Create(&run).Error; dbErr != nil {
			return fmt.Errorf("failed to insert universe run: %w", dbErr)
		}

		memberRows := make([]WalletUniverseMember, 0, len(members))
		currentRows := make([]WalletUniverseCurrent, 0, len(members))
		for _, m := range members {
			memberRows = append(memberRows, WalletUniverseMember{
				RunID: run.ID, WalletID: m.WalletID, Rank: m.Rank,
				Pnl30d: m.Pnl30d, Roi30d: m.Roi30d, AccountValue: m.AccountValue,
			})
			currentRows = append(currentRows, WalletUniverseCurrent{
				WalletID: m.WalletID, Rank: m.Rank, Pnl30d: m.Pnl30d, Roi30d: m.Roi30d,
				AccountValue: m.AccountValue, RunID: run.ID,
			})
		}
		if len(memberRows) > 0 {
			if dbErr := tx.Create(&memberRows).Error; dbErr != nil {
				return fmt.Errorf("failed to insert universe members: %w", dbErr)
			}
		}

		if dbErr := tx.Where("1 = 1").Delete(&WalletUniverseCurrent{}).Error; dbErr != nil {
			return fmt.Errorf("failed to clear current universe: %w", dbErr)
		}
		if len(currentRows) > 0 {
			if dbErr := tx.Create(&currentRows).Error; dbErr != nil {
				return fmt.Errorf("failed to replace current universe: %w", dbErr)
			}
		}
		return nil
	})
	return entered, exited, err
}

// RecordFailedUniverseRun records a failed refresh without touching the
// existing universe.
func (s *Store) RecordFailedUniverseRun(runTs time.Time, validRows int, cause error) error {
	run := WalletUniverseRun{
		RunTs: runTs, Status: "failed", ValidRows: validRows,
	}
	if cause != nil {
		run.Error = cause.Error()
	}
	if err := s.DB.Create(&run).Error; err != nil {
		return fmt.Errorf("failed to record failed universe run: %w", err)
	}
	return nil
}

// diffUniverse computes the entered/exited wallet ids between the previous
// current universe and a freshly-ranked member set. Pure and DB-free so it
// can be exercised directly in tests.
func diffUniverse(previous []WalletUniverseCurrent, members []UniverseMember) (entered, exited []string) {
	prevSet := make(map[string]bool, len(previous))
	for _, p := range previous {
		prevSet[p.WalletID] = true
	}
	newSet := make(map[string]bool, len(members))
	for _, m := range members {
		newSet[m.WalletID] = true
	}
	for id := range newSet {
		if !prevSet[id] {
			entered = append(entered, id)
		}
	}
	for id := range prevSet {
		if !newSet[id] {
			exited = append(exited, id)
		}
	}
	return entered, exited
}
