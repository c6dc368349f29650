// Package alerts evaluates the three alert types once per signal cycle:
// system-wide staleness, per-asset regime changes, and per-asset exit
// clustering. All state lives in the store — nothing is cached in-process,
// so correctness after a crash equals correctness without one.
package alerts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cohortsignal/engine/internal/store"
)

const (
	typeSystemStale  = "system_stale"
	typeRegimeChange = "regime_change"
	typeExitCluster  = "exit_cluster"
)

const (
	systemStaleThreshold = 10 * time.Minute
	regimePersistRuns    = 2
	regimeCooldown       = 30 * time.Minute
	exitClusterTrigger   = 25.0
	exitClusterReset     = 20.0
	exitClusterCooldown  = 60 * time.Minute
)

const alertQuotaWindow = 24 * time.Hour
const alertQuotaMax = 4

// Engine evaluates alerts against the durable alert_state/alerts tables.
type Engine struct {
	store *store.Store
}

// New builds an alert Engine over st.
func New(st *store.Store) *Engine {
	return &Engine{store: st}
}

// SignalSnapshot is the minimal per-asset signal shape the alert engine
// reasons about and records alongside fired alerts for audit.
type SignalSnapshot struct {
	Asset           string
	SignalTs        time.Time
	AllowedPlaybook string
	RiskMode        string
	ExitClusterScore float64
}

// EvaluateCycle runs all three alert types for one signal cycle: system
// staleness first (asset-agnostic), then regime-change and exit-cluster for
// every asset that produced a snapshot this cycle. It is invoked once per
// 5-minute cycle, after signals persist.
func (e *Engine) EvaluateCycle(now time.Time, lastSuccessSnapshotTs *time.Time, snapshots []SignalSnapshot) error {
	stale, err := e.evaluateSystemStale(now, lastSuccessSnapshotTs)
	if err != nil {
		return fmt.Errorf("evaluate system stale: %w", err)
	}
	if stale {
		return nil // all behavioral alerts suppressed at the entry point
	}

	// Each (asset, alert type) evaluation is isolated: an error is collected
	// and the remaining evaluations still run.
	var errs []error
	for _, snap := range snapshots {
		if err := e.evaluateRegimeChange(now, snap); err != nil {
			errs = append(errs, fmt.Errorf("evaluate regime change for %s: %w", snap.Asset, err))
		}
		if err := e.evaluateExitCluster(now, snap); err != nil {
			errs = append(errs, fmt.Errorf("evaluate exit cluster for %s: %w", snap.Asset, err))
		}
	}
	return errors.Join(errs...)
}

// evaluateSystemStale returns whether the system is (now) in the stale
// state, after applying the state machine transition for this cycle.
func (e *Engine) evaluateSystemStale(now time.Time, lastSuccessSnapshotTs *time.Time) (bool, error) {
	staleCondition := lastSuccessSnapshotTs == nil || now.Sub(*lastSuccessSnapshotTs) > systemStaleThreshold

	st, err := e.store.GetAlertState(store.SystemAsset, typeSystemStale)
	if err != nil {
		return false, err
	}

	switch {
	case st == nil || !st.IsActive:
		if !staleCondition {
			if st == nil {
				return false, e.store.UpsertAlertState(store.AlertState{Asset: store.SystemAsset, AlertType: typeSystemStale, IsActive: false})
			}
			return false, nil
		}
		// inactive -> stale: fire, no cooldown/quota gating (dead-man's-switch).
		if err := e.fire(now, store.SystemAsset, typeSystemStale, "critical",
			"ingestion has not succeeded in over 10 minutes", "", false); err != nil {
			return true, err
		}
		return true, e.store.UpsertAlertState(store.AlertState{Asset: store.SystemAsset, AlertType: typeSystemStale, IsActive: true, LastTriggeredTs: &now})
	default: // st.IsActive == true
		if !staleCondition {
			st.IsActive = false
			return false, e.store.UpsertAlertState(*st)
		}
		return true, nil // still stale: no re-fire
	}
}

// evaluateRegimeChange advances the per-asset regime-change state machine
// and fires once a playbook change has held for two consecutive signal
// periods.
func (e *Engine) evaluateRegimeChange(now time.Time, snap SignalSnapshot) error {
	asset := snap.Asset
	current := snap.AllowedPlaybook

	st, err := e.store.GetAlertState(asset, typeRegimeChange)
	if err != nil {
		return err
	}
	if st == nil {
		return e.store.UpsertAlertState(store.AlertState{
			Asset: asset, AlertType: typeRegimeChange, PreviousPlaybook: current, PendingPlaybook: "", PendingPeriods: 0,
		})
	}

	switch {
	case current == st.PreviousPlaybook:
		if st.PendingPlaybook != "" {
			st.PendingPlaybook = ""
			st.PendingPeriods = 0
			return e.store.UpsertAlertState(*st)
		}
		return nil // stable, nothing to do

	case current == st.PendingPlaybook:
		st.PendingPeriods++
		if st.PendingPeriods < regimePersistRuns {
			return e.store.UpsertAlertState(*st)
		}
		snapshotJSON, _ := json.Marshal(snap)
		if err := e.fireThrottled(now, asset, typeRegimeChange, "medium",
			fmt.Sprintf("regime change confirmed: %s (%s)", current, snap.RiskMode),
			string(snapshotJSON), regimeCooldown); err != nil {
			return err
		}
		// Re-read state: an unsuppressed fire just upserted is_active/
		// cooldown_until, and writing back the pre-fire st here would wipe
		// that cooldown.
		fresh, err := e.store.GetAlertState(asset, typeRegimeChange)
		if err != nil {
			return err
		}
		fresh.PreviousPlaybook = current
		fresh.PendingPlaybook = ""
		fresh.PendingPeriods = 0
		return e.store.UpsertAlertState(*fresh)

	default: // current differs from both previous and pending
		st.PendingPlaybook = current
		st.PendingPeriods = 1
		return e.store.UpsertAlertState(*st)
	}
}

// evaluateExitCluster runs the hysteresis state machine for the exit
// cluster score: trigger 25%, reset 20%.
func (e *Engine) evaluateExitCluster(now time.Time, snap SignalSnapshot) error {
	asset := snap.Asset
	ec := snap.ExitClusterScore

	st, err := e.store.GetAlertState(asset, typeExitCluster)
	if err != nil {
		return err
	}
	active := st != nil && st.IsActive

	switch {
	case !active && ec > exitClusterTrigger:
		snapshotJSON, _ := json.Marshal(snap)
		if err := e.fireThrottled(now, asset, typeExitCluster, "high",
			fmt.Sprintf("exit cluster score %.1f%% crossed the %.0f%% trigger", ec, exitClusterTrigger),
			string(snapshotJSON), exitClusterCooldown); err != nil {
			return err
		}
		// An unsuppressed fire already upserted is_active/cooldown_until; a
		// suppressed one wrote no state. Re-read and only mark active here,
		// without clobbering any cooldown already set.
		fresh, err := e.store.GetAlertState(asset, typeExitCluster)
		if err != nil {
			return err
		}
		if fresh == nil {
			fresh = &store.AlertState{Asset: asset, AlertType: typeExitCluster}
		}
		fresh.IsActive = true
		fresh.LastTriggeredTs = &now
		return e.store.UpsertAlertState(*fresh)

	case active && ec < exitClusterReset:
		// Write back the read row so the cooldown set by the last fire holds.
		st.IsActive = false
		return e.store.UpsertAlertState(*st)

	default:
		return nil // dead zone or no change: state machine holds
	}
}

// fireThrottled applies cooldown and rolling-quota throttling before
// firing: a throttled fire is still persisted, marked suppressed, and does
// not advance the asset's cooldown.
func (e *Engine) fireThrottled(now time.Time, asset, alertType, severity, message, snapshotJSON string, cooldown time.Duration) error {
	st, err := e.store.GetAlertState(asset, alertType)
	if err != nil {
		return err
	}
	if st != nil && st.CooldownUntil != nil && st.CooldownUntil.After(now) {
		return e.persistSuppressed(now, asset, alertType, severity, message, snapshotJSON, st.CooldownUntil)
	}

	count, err := e.store.CountNonSuppressedAlerts(asset, now.Add(-alertQuotaWindow), now)
	if err != nil {
		return err
	}
	if count >= alertQuotaMax {
		return e.persistSuppressed(now, asset, alertType, severity, message, snapshotJSON, nil)
	}

	until := now.Add(cooldown)
	if err := e.store.AppendAlert(store.Alert{
		AlertTs: now, Asset: asset, AlertType: alertType, Severity: severity,
		Message: message, SignalSnapshot: snapshotJSON, CooldownUntil: &until, Suppressed: false,
	}); err != nil {
		return err
	}
	return e.store.UpsertAlertState(store.AlertState{
		Asset: asset, AlertType: alertType, IsActive: true, LastTriggeredTs: &now, CooldownUntil: &until,
	})
}

// fire persists an alert with no throttling — used only by the dead-man's
// switch, which is exempt from cooldown/quota gating.
func (e *Engine) fire(now time.Time, asset, alertType, severity, message, snapshotJSON string, suppressed bool) error {
	return e.store.AppendAlert(store.Alert{
		AlertTs: now, Asset: asset, AlertType: alertType, Severity: severity,
		Message: message, SignalSnapshot: snapshotJSON, Suppressed: suppressed,
	})
}

func (e *Engine) persistSuppressed(now time.Time, asset, alertType, severity, message, snapshotJSON string, cooldownUntil *time.Time) error {
	return e.store.AppendAlert(store.Alert{
		AlertTs: now, Asset: asset, AlertType: alertType, Severity: severity,
		Message: message, SignalSnapshot: snapshotJSON, CooldownUntil: cooldownUntil, Suppressed: true,
	})
}
