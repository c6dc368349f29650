// Package ingest runs the per-minute wallet-snapshot cycle: it pulls
// clearinghouse state for every wallet in the current universe across all
// tracked assets, writes the snapshot rows, and records run/health outcomes
// so the signal engine's dead-man's-switch can observe staleness.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/cohortsignal/engine/configs"
	"github.com/cohortsignal/engine/internal/store"
	"github.com/cohortsignal/engine/pkg/hyperliquid"
)

// successCoverageFloor/failedCoverageFloor bound the three ingest run
// statuses: coverage >= successCoverageFloor is "success", coverage >=
// failedCoverageFloor is "partial", anything below is "failed".
const successCoverageFloor = 95.0
const failedCoverageFloor = 5.0

// degradedHealthFloor is the coverage percentage below which a "partial"
// cycle's health state is "stale" rather than "degraded".
const degradedHealthFloor = 80.0

// PositionsFetcher is satisfied by *hyperliquid.Client.
type PositionsFetcher interface {
	FetchMultiple(ctx context.Context, addrs []string, cap int) map[string]*hyperliquid.ClearinghouseState
}

// Ingester runs one snapshot cycle at a time.
type Ingester struct {
	client         PositionsFetcher
	store          *store.Store
	maxConcurrency int
	staleThreshold time.Duration
}

// New builds an Ingester bounded to maxConcurrency in-flight wallet fetches.
// staleThreshold forces the ingest health state to "stale" once this long
// has passed since the last successful cycle, regardless of the current
// cycle's own coverage.
func New(client PositionsFetcher, st *store.Store, maxConcurrency int, staleThreshold time.Duration) *Ingester {
	return &Ingester{client: client, store: st, maxConcurrency: maxConcurrency, staleThreshold: staleThreshold}
}

// CycleResult summarizes one minute's ingestion outcome.
type CycleResult struct {
	SnapshotTs       time.Time
	Status           string
	WalletsExpected  int
	WalletsSucceeded int
	RowsWritten      int
	CoveragePct      float64
}

// Run executes one ingestion cycle for snapshotTs: fetch every universe
// wallet's clearinghouse state, write one row per (wallet, tracked asset)
// for every wallet whose fetch succeeded, and record the run/health rows.
// A wallet fetch failure does not fail the cycle; it is reflected in
// coverage and, if severe enough, the cycle status.
func (g *Ingester) Run(ctx context.Context, snapshotTs time.Time) (CycleResult, error) {
	start := time.Now()
	universe, err := g.store.CurrentUniverse()
	if err != nil {
		return CycleResult{}, fmt.Errorf("read current universe: %w", err)
	}
	priorHealth, err := g.store.LatestIngestHealth()
	if err != nil {
		return CycleResult{}, fmt.Errorf("read ingest health: %w", err)
	}

	addrs := make([]string, 0, len(universe))
	for _, u := range universe {
		addrs = append(addrs, u.WalletID)
	}

	var status, cycleErr string
	var succeeded int
	var rows []store.WalletSnapshot

	if len(addrs) == 0 {
		status = "failed"
		cycleErr = "current universe is empty"
	} else {
		states := g.client.FetchMultiple(ctx, addrs, g.maxConcurrency)

		rows = make([]store.WalletSnapshot, 0, len(addrs)*len(configs.TrackedAssets))
		for _, addr := range addrs {
			state := states[addr]
			if state == nil {
				continue
			}
			succeeded++
			for _, asset := range configs.TrackedAssets {
				pos := state.PositionFor(string(asset))
				rows = append(rows, store.WalletSnapshot{
					SnapshotTs: snapshotTs,
					WalletID:   addr,
					Asset:      string(asset),
					Szi:        pos.Szi,
					EntryPx:    pos.EntryPx,
					LiqPx:      pos.LiquidationPx,
					Leverage:   pos.Leverage,
					MarginUsed: pos.MarginUsed,
					IsDirty:    false,
				})
			}
		}

		if err := g.store.UpsertSnapshots(rows); err != nil {
			return CycleResult{}, fmt.Errorf("upsert snapshots: %w", err)
		}
	}

	rowsExpected := len(addrs) * len(configs.TrackedAssets)
	coverage := 0.0
	if len(addrs) > 0 {
		coverage = 100.0 * float64(succeeded) / float64(len(addrs))
	}

	if status == "" {
		switch {
		case coverage >= successCoverageFloor:
			status = "success"
		case coverage >= failedCoverageFloor:
			status = "partial"
		default:
			status = "failed"
		}
	}

	run := store.IngestRun{
		SnapshotTs:       snapshotTs,
		Status:           status,
		WalletsExpected:  len(addrs),
		WalletsSucceeded: succeeded,
		WalletsFailed:    len(addrs) - succeeded,
		RowsExpected:     rowsExpected,
		RowsWritten:      len(rows),
		CoveragePct:      coverage,
		DurationMs:       time.Since(start).Milliseconds(),
		Error:            cycleErr,
	}
	if err := g.store.UpsertIngestRun(run); err != nil {
		return CycleResult{}, fmt.Errorf("upsert ingest run: %w", err)
	}

	lastSuccessTs := carryLastSuccess(priorHealth, status, snapshotTs)
	sinceLastSuccess := store.MinutesSinceLastSuccess(&store.IngestHealth{LastSuccessSnapshotTs: lastSuccessTs}, snapshotTs)

	health := store.IngestHealth{
		HealthTs:              snapshotTs,
		LastSuccessSnapshotTs: lastSuccessTs,
		SnapshotStatus:        status,
		CoveragePct:           coverage,
		HealthState:           healthState(status, coverage, sinceLastSuccess, g.staleThreshold),
		Error:                 cycleErr,
	}
	if err := g.store.AppendIngestHealth(health); err != nil {
		return CycleResult{}, fmt.Errorf("append ingest health: %w", err)
	}

	return CycleResult{
		SnapshotTs:       snapshotTs,
		Status:           status,
		WalletsExpected:  len(addrs),
		WalletsSucceeded: succeeded,
		RowsWritten:      len(rows),
		CoveragePct:      coverage,
	}, nil
}

// carryLastSuccess returns the timestamp to record as last_success_snapshot_ts:
// this cycle's own timestamp on a clean success, otherwise whatever the prior
// health row already had (nil if there has never been a success).
func carryLastSuccess(prior *store.IngestHealth, status string, snapshotTs time.Time) *time.Time {
	if status == "success" {
		ts := snapshotTs
		return &ts
	}
	if prior == nil {
		return nil
	}
	return prior.LastSuccessSnapshotTs
}

// healthState derives ingest_health.health_state from this cycle's own
// status and coverage, then forces "stale" if it has been too long since
// the last successful cycle regardless of this cycle's own coverage.
func healthState(status string, coverage float64, sinceLastSuccess, staleThreshold time.Duration) string {
	state := "stale"
	switch status {
	case "success":
		state = "healthy"
	case "partial":
		if coverage >= degradedHealthFloor {
			state = "degraded"
		}
	}
	if sinceLastSuccess > staleThreshold {
		return "stale"
	}
	return state
}
