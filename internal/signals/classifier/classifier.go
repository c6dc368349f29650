// Package classifier assigns each wallet's position delta a behavioral
// state, against a per-asset noise floor that adapts to recent
// position-size activity.
package classifier

import (
	"math"
	"sort"

	"github.com/cohortsignal/engine/configs"
)

// State is one of the four mutually-exclusive wallet behaviors.
type State string

const (
	AdderLong  State = "adder_long"
	AdderShort State = "adder_short"
	Reducer    State = "reducer"
	Flat       State = "flat"
)

// epsilonFraction is the fraction of the trailing median |szi| that competes
// with the fixed absolute floor; the larger of the two is the noise floor.
const epsilonFraction = 0.02

// Epsilon computes the per-wallet noise floor for an asset: the larger of
// the asset's fixed absolute floor and 2% of the median absolute size over
// the trailing 24h. With no history, the floor alone applies.
func Epsilon(asset configs.Asset, table *configs.AssetTable, sziHistory24h []float64) float64 {
	floor := table.Epsilon(asset)
	if len(sziHistory24h) == 0 {
		return floor
	}
	adaptive := epsilonFraction * median(sziHistory24h)
	return math.Max(floor, adaptive)
}

// Classify evaluates the four state rules top-down; the first match wins.
// sziPrevious/delta nil (no prior snapshot) always yields Flat.
func Classify(sziCurrent float64, sziPrevious, delta *float64, epsilon float64) State {
	if sziPrevious == nil || delta == nil {
		return Flat
	}
	d := *delta
	switch {
	case d > epsilon && sziCurrent > 0:
		return AdderLong
	case d < -epsilon && sziCurrent < 0:
		return AdderShort
	case math.Abs(sziCurrent) < math.Abs(*sziPrevious)-epsilon:
		return Reducer
	default:
		return Flat
	}
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
