// Package universe refreshes the tracked cohort of wallets: it pulls the
// leaderboard, ranks by trailing 30-day pnl, and replaces the current
// universe — or records a failed run and leaves the existing universe
// untouched when too few rows parsed cleanly.
package universe

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cohortsignal/engine/internal/store"
	"github.com/cohortsignal/engine/pkg/hyperliquid"
)

// minValidFraction is the guardrail: a refresh run with fewer valid rows
// than this fraction of the configured universe size is rejected outright,
// preserving the previous universe.
const minValidFraction = 0.90

// LeaderboardFetcher is satisfied by *hyperliquid.Client; narrowed here so
// the refresher can be tested against a stub.
type LeaderboardFetcher interface {
	FetchLeaderboard(ctx context.Context) ([]hyperliquid.LeaderboardRow, error)
}

// Refresher rebuilds the tracked universe on a cadence.
type Refresher struct {
	client LeaderboardFetcher
	store  *store.Store
	size   int
}

// New builds a Refresher that keeps the top size wallets by trailing
// 30-day pnl.
func New(client LeaderboardFetcher, st *store.Store, size int) *Refresher {
	return &Refresher{client: client, store: st, size: size}
}

// Result summarizes the outcome of one refresh run.
type Result struct {
	RunTs     time.Time
	ValidRows int
	Accepted  bool
	Entered   []string
	Exited    []string
}

// Refresh runs one universe-refresh cycle. A leaderboard fetch failure or
// an under-threshold valid-row count is recorded as a
// failed run and leaves the existing universe in place; it is not
// propagated as an error to the caller, since callers should keep running
// their schedule regardless.
func (r *Refresher) Refresh(ctx context.Context, runTs time.Time) (Result, error) {
	rows, err := r.client.FetchLeaderboard(ctx)
	if err != nil {
		if recErr := r.store.RecordFailedUniverseRun(runTs, 0, err); recErr != nil {
			return Result{}, fmt.Errorf("record failed universe run: %w", recErr)
		}
		return Result{RunTs: runTs, Accepted: false}, nil
	}

	ranked := rankByMonthPnl(rows)
	valid := ranked
	if len(valid) > r.size {
		valid = valid[:r.size]
	}

	required := int(minValidFraction * float64(r.size))
	if len(valid) < required {
		cause := fmt.Errorf("only %d of %d required wallets parsed cleanly", len(valid), required)
		if recErr := r.store.RecordFailedUniverseRun(runTs, len(valid), cause); recErr != nil {
			return Result{}, fmt.Errorf("record failed universe run: %w", recErr)
		}
		return Result{RunTs: runTs, ValidRows: len(valid), Accepted: false}, nil
	}

	members := make([]store.UniverseMember, 0, len(valid))
	for i, row := range valid {
		pnl, roi := row.Month()
		members = append(members, store.UniverseMember{
			WalletID:     row.EthAddress,
			Rank:         i + 1,
			Pnl30d:       pnl,
			Roi30d:       roi,
			AccountValue: row.AccountValue.Value,
		})
	}

	entered, exited, err := r.store.ReplaceUniverse(runTs, members)
	if err != nil {
		return Result{}, fmt.Errorf("replace universe: %w", err)
	}

	return Result{
		RunTs:     runTs,
		ValidRows: len(valid),
		Accepted:  true,
		Entered:   entered,
		Exited:    exited,
	}, nil
}

// rankByMonthPnl sorts rows by trailing 30-day pnl descending. It drops no
// rows; rows without an address are already filtered upstream by the client.
func rankByMonthPnl(rows []hyperliquid.LeaderboardRow) []hyperliquid.LeaderboardRow {
	out := make([]hyperliquid.LeaderboardRow, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		pnlI, _ := out[i].Month()
		pnlJ, _ := out[j].Month()
		return pnlI > pnlJ
	})
	return out
}
