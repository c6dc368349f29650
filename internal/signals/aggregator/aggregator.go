// Package aggregator builds the per-wallet szi delta table an asset's 5-minute
// signal computation is built on: the current window's latest snapshot
// per wallet, paired with the equivalent prior window, when present.
package aggregator

import (
	"fmt"
	"log"
	"time"

	"github.com/cohortsignal/engine/internal/store"
)

const window = 5 * time.Minute

// WalletDelta is one wallet's position change across two adjacent windows.
// SziPrevious and Delta are nil when the wallet has no prior-window snapshot.
type WalletDelta struct {
	WalletID    string
	SziCurrent  float64
	SziPrevious *float64
	Delta       *float64
}

// Result is the aggregator's output for one (asset, signal_ts).
type Result struct {
	Wallets      []WalletDelta
	WalletCount  int // wallets with a non-null delta
	MissingCount int // current-window wallets with no previous-window snapshot
}

// Aggregate pulls the current and previous 5-minute snapshot windows for
// asset ending at signalTs and pairs them per wallet.
func Aggregate(st *store.Store, asset string, signalTs time.Time) (Result, error) {
	current, err := st.SnapshotsInWindow(asset, signalTs.Add(-window), signalTs)
	if err != nil {
		return Result{}, fmt.Errorf("read current window: %w", err)
	}
	previous, err := st.SnapshotsInWindow(asset, signalTs.Add(-2*window), signalTs.Add(-window))
	if err != nil {
		return Result{}, fmt.Errorf("read previous window: %w", err)
	}

	var out Result
	for walletID, cur := range current {
		wd := WalletDelta{WalletID: walletID, SziCurrent: cur.Szi}
		if prev, ok := previous[walletID]; ok {
			p := prev.Szi
			d := cur.Szi - p
			wd.SziPrevious = &p
			wd.Delta = &d
			out.WalletCount++
		} else {
			out.MissingCount++ // no prior-window snapshot: delta stays null
		}
		out.Wallets = append(out.Wallets, wd)
	}

	// Wallets present only in the previous window have dropped out of the
	// current one entirely; they carry no current szi to report against, so
	// they are logged here and omitted from the output (not counted —
	// wallet_count/missing_count partition the current window only).
	for walletID := range previous {
		if _, ok := current[walletID]; !ok {
			log.Printf("aggregator: %s %s at %s: wallet absent from current window, omitted", asset, walletID, signalTs)
		}
	}

	return out, nil
}
