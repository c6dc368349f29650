// Package playbook resolves the cohort's four scalar signals into a
// trading stance and risk posture: an override chain evaluated first,
// falling through to an explicit decision matrix.
package playbook

import "github.com/cohortsignal/engine/internal/signals/core"

// Playbook is the discrete trading stance the system permits.
type Playbook string

const (
	LongOnly Playbook = "Long-only"
	ShortOnly Playbook = "Short-only"
	NoTrade  Playbook = "No-trade"
)

// RiskMode is the position-sizing posture attached to a playbook.
type RiskMode string

const (
	Normal    RiskMode = "Normal"
	Reduced   RiskMode = "Reduced"
	Defensive RiskMode = "Defensive"
)

// diBand and ecBand classify the dispersion/exit-cluster scores into the
// three-way Low/Medium/High bands the matrix is keyed on.
type diBand int

const (
	diLow diBand = iota
	diMedium
	diHigh
)

type ecBand int

const (
	ecLow ecBand = iota
	ecMedium
	ecHigh
)

func classifyDi(di float64) diBand {
	switch {
	case di >= 60:
		return diHigh
	case di >= 40:
		return diMedium
	default:
		return diLow
	}
}

func classifyEc(ec float64) ecBand {
	switch {
	case ec > 25:
		return ecHigh
	case ec >= 16:
		return ecMedium
	default:
		return ecLow
	}
}

// Decision is the resolved playbook and its derived trading flags.
type Decision struct {
	Playbook     Playbook
	RiskMode     RiskMode
	AddExposure  bool
	TightenStops bool
}

// Resolve evaluates the override chain then the matrix, in strict
// declaration order; the first match wins.
func Resolve(cas, di, ec float64, trend core.Trend) Decision {
	d := resolvePlaybook(cas, di, ec, trend)
	d.AddExposure = trend == core.Rising && ec < 16 && di < 60
	d.TightenStops = ec > 25 || trend == core.Falling || di >= 60
	return d
}

func resolvePlaybook(cas, di, ec float64, trend core.Trend) Decision {
	switch {
	case di >= 60:
		return Decision{Playbook: NoTrade, RiskMode: Defensive}
	case ec > 25:
		return Decision{Playbook: NoTrade, RiskMode: Defensive}
	case trend == core.Falling && cas > 60:
		return Decision{Playbook: NoTrade, RiskMode: Reduced}
	}

	diB := classifyDi(di)
	ecB := classifyEc(ec)

	switch {
	case cas > 75 && trend == core.Rising && diB == diLow && ecB == ecLow:
		return Decision{Playbook: LongOnly, RiskMode: Normal}
	case cas > 75 && trend == core.Rising && diB == diLow && ecB == ecMedium:
		return Decision{Playbook: LongOnly, RiskMode: Reduced}
	case cas > 75 && trend == core.Flat && diB == diLow && ecB == ecLow:
		return Decision{Playbook: LongOnly, RiskMode: Reduced}
	case cas >= 60 && cas <= 75 && trend == core.Rising && diB == diLow && ecB == ecLow:
		return Decision{Playbook: LongOnly, RiskMode: Reduced}
	case cas >= 60 && cas <= 75 && diB == diMedium && ecB == ecLow:
		return Decision{Playbook: LongOnly, RiskMode: Reduced}
	case cas < 25 && trend == core.Falling && diB == diLow && ecB == ecLow:
		return Decision{Playbook: ShortOnly, RiskMode: Normal}
	case cas < 25 && trend == core.Falling && diB == diLow && ecB == ecMedium:
		return Decision{Playbook: ShortOnly, RiskMode: Reduced}
	case cas < 25 && trend == core.Flat && diB == diLow && ecB == ecLow:
		return Decision{Playbook: ShortOnly, RiskMode: Reduced}
	case cas >= 25 && cas < 40 && trend == core.Falling && diB == diLow && ecB == ecLow:
		return Decision{Playbook: ShortOnly, RiskMode: Reduced}
	case cas >= 25 && cas < 40 && diB == diMedium && ecB == ecLow:
		return Decision{Playbook: ShortOnly, RiskMode: Reduced}
	case cas >= 40 && cas <= 60:
		return Decision{Playbook: NoTrade, RiskMode: Defensive}
	default:
		return Decision{Playbook: NoTrade, RiskMode: Reduced}
	}
}
