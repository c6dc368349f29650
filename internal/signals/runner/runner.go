// Package runner orchestrates one 5-minute signal cycle: the signal lock,
// the aggregator → classifier → core → playbook pipeline per tracked
// asset, persistence, and the alert engine.
package runner

import (
	"fmt"
	"log"
	"time"

	"github.com/cohortsignal/engine/configs"
	"github.com/cohortsignal/engine/internal/alerts"
	"github.com/cohortsignal/engine/internal/signals/aggregator"
	"github.com/cohortsignal/engine/internal/signals/classifier"
	"github.com/cohortsignal/engine/internal/signals/core"
	"github.com/cohortsignal/engine/internal/signals/playbook"
	"github.com/cohortsignal/engine/internal/store"
)

const sziHistoryWindow = 24 * time.Hour
const trendHistoryLookback = 3

// Runner ties the signal pipeline and alert engine together for one cycle.
type Runner struct {
	store      *store.Store
	assetTable *configs.AssetTable
	alerts     *alerts.Engine
}

// New builds a signal Runner.
func New(st *store.Store, assetTable *configs.AssetTable) *Runner {
	return &Runner{store: st, assetTable: assetTable, alerts: alerts.New(st)}
}

// CycleResult reports whether signals were computed this cycle, and for how
// many assets.
type CycleResult struct {
	Locked      bool
	AssetsDone  int
	AssetErrors int
}

// Run executes one signal cycle at signalTs. If the signal lock engages
// (ingestion unhealthy), no signals are persisted and no alerts are
// evaluated — the prior cycle's state is left untouched.
func (r *Runner) Run(signalTs time.Time) (CycleResult, error) {
	health, err := r.store.LatestIngestHealth()
	if err != nil {
		return CycleResult{}, fmt.Errorf("read ingest health: %w", err)
	}
	if locked(health) {
		return CycleResult{Locked: true}, nil
	}

	snapshots := make([]alerts.SignalSnapshot, 0, len(configs.TrackedAssets))
	var assetErrors int
	for _, asset := range configs.TrackedAssets {
		snap, err := r.computeAsset(signalTs, asset)
		if err != nil {
			log.Printf("signal computation failed for %s at %s: %v", asset, signalTs, err)
			assetErrors++
			continue
		}
		snapshots = append(snapshots, snap)
	}

	if err := r.alerts.EvaluateCycle(signalTs, health.LastSuccessSnapshotTs, snapshots); err != nil {
		return CycleResult{}, fmt.Errorf("evaluate alerts: %w", err)
	}

	return CycleResult{AssetsDone: len(snapshots), AssetErrors: assetErrors}, nil
}

// locked implements the signal-lock gate: no health row, a stale state, or a
// failed last snapshot all suppress the entire cycle.
func locked(health *store.IngestHealth) bool {
	if health == nil {
		return true
	}
	if health.HealthState == "stale" {
		return true
	}
	if health.SnapshotStatus == "failed" {
		return true
	}
	return false
}

func (r *Runner) computeAsset(signalTs time.Time, asset configs.Asset) (alerts.SignalSnapshot, error) {
	agg, err := aggregator.Aggregate(r.store, string(asset), signalTs)
	if err != nil {
		return alerts.SignalSnapshot{}, fmt.Errorf("aggregate: %w", err)
	}

	history, err := r.store.SziHistory(string(asset), signalTs.Add(-sziHistoryWindow))
	if err != nil {
		return alerts.SignalSnapshot{}, fmt.Errorf("read szi history: %w", err)
	}
	epsilon := classifier.Epsilon(asset, r.assetTable, history)

	inputs := make([]core.WalletInput, 0, len(agg.Wallets))
	for _, w := range agg.Wallets {
		inputs = append(inputs, core.WalletInput{
			SziCurrent: w.SziCurrent, SziPrevious: w.SziPrevious, Delta: w.Delta, Epsilon: epsilon,
		})
	}

	counts := core.Tally(inputs)
	ec := core.ExitClusterScore(counts)
	cas := core.AlignmentScore(counts, ec)
	di := core.DispersionIndex(inputs)

	recent, err := r.store.RecentAlignmentScores(string(asset), signalTs, trendHistoryLookback)
	if err != nil {
		return alerts.SignalSnapshot{}, fmt.Errorf("read recent alignment scores: %w", err)
	}
	trend := core.AlignmentTrend(cas, recent)

	decision := playbook.Resolve(cas, di, ec, trend)

	sig := store.Signal{
		SignalTs: signalTs, Asset: string(asset),
		AlignmentScore: cas, AlignmentTrend: string(trend), DispersionIndex: di, ExitClusterScore: ec,
		AllowedPlaybook: string(decision.Playbook), RiskMode: string(decision.RiskMode),
		AddExposure: decision.AddExposure, TightenStops: decision.TightenStops,
		WalletCount: agg.WalletCount, MissingCount: agg.MissingCount,
	}

	var contributors *store.SignalContributors
	if counts.Total > 0 {
		contributors = &store.SignalContributors{
			SignalTs: signalTs, Asset: string(asset),
			PctAdderLong: pct(counts.AdderLong, counts.Total), PctAdderShort: pct(counts.AdderShort, counts.Total),
			PctReducer: pct(counts.Reducer, counts.Total), PctFlat: pct(counts.Flat, counts.Total),
			CountAdderLong: counts.AdderLong, CountAdderShort: counts.AdderShort,
			CountReducer: counts.Reducer, CountFlat: counts.Flat,
		}
	}

	if err := r.store.UpsertSignal(sig, contributors); err != nil {
		return alerts.SignalSnapshot{}, fmt.Errorf("persist signal: %w", err)
	}

	return alerts.SignalSnapshot{
		Asset: string(asset), SignalTs: signalTs,
		AllowedPlaybook: string(decision.Playbook), RiskMode: string(decision.RiskMode),
		ExitClusterScore: ec,
	}, nil
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}
