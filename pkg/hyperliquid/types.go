package hyperliquid

import (
	"encoding/json"
	"strconv"
)

// FlexFloat parses a JSON number or numeric string into a float64, and
// preserves JSON null. The account_value field varies between string and
// float at the wire boundary; this normalizes it.
type FlexFloat struct {
	Value *float64
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		f.Value = nil
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.Value = &num
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		f.Value = nil
		return nil
	}
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.Value = &parsed
	return nil
}

// WindowPerformance is one entry of a leaderboard row's windowPerformances
// tuple: [window, {pnl, roi}].
type WindowPerformance struct {
	Window string
	Pnl    float64
	Roi    float64
}

func (w *WindowPerformance) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return nil
	}
	if err := json.Unmarshal(raw[0], &w.Window); err != nil {
		return err
	}
	var stats struct {
		Pnl string `json:"pnl"`
		Roi string `json:"roi"`
	}
	if err := json.Unmarshal(raw[1], &stats); err != nil {
		return err
	}
	if stats.Pnl != "" {
		if v, err := strconv.ParseFloat(stats.Pnl, 64); err == nil {
			w.Pnl = v
		}
	}
	if stats.Roi != "" {
		if v, err := strconv.ParseFloat(stats.Roi, 64); err == nil {
			w.Roi = v
		}
	}
	return nil
}

// LeaderboardRow is a single entry from the leaderboardRows[] array.
type LeaderboardRow struct {
	EthAddress         string              `json:"ethAddress"`
	AccountValue       FlexFloat           `json:"accountValue"`
	WindowPerformances []WindowPerformance `json:"windowPerformances"`
}

// Month returns the 30-day pnl/roi window, defaulting to zero when the
// "month" window is absent.
func (r LeaderboardRow) Month() (pnl, roi float64) {
	for _, w := range r.WindowPerformances {
		if w.Window == "month" {
			return w.Pnl, w.Roi
		}
	}
	return 0, 0
}

type leaderboardResponse struct {
	LeaderboardRows []LeaderboardRow `json:"leaderboardRows"`
}

// Position is the parsed clearinghouse position for one asset.
type Position struct {
	Coin         string
	Szi          float64
	EntryPx      *float64
	LiquidationPx *float64
	Leverage     *float64
	MarginUsed   *float64
}

type assetPositionWire struct {
	Position struct {
		Coin          string          `json:"coin"`
		Szi           string          `json:"szi"`
		EntryPx       *string         `json:"entryPx"`
		LiquidationPx *string         `json:"liquidationPx"`
		Leverage      json.RawMessage `json:"leverage"`
		MarginUsed    *string         `json:"marginUsed"`
	} `json:"position"`
}

type clearinghouseStateWire struct {
	AssetPositions []assetPositionWire `json:"assetPositions"`
}

// ClearinghouseState is the parsed wallet clearinghouse state.
type ClearinghouseState struct {
	Positions []Position
}

// PositionFor returns the position for the given coin, or a zero-szi
// position if the wallet holds none in that asset.
func (c ClearinghouseState) PositionFor(coin string) Position {
	for _, p := range c.Positions {
		if p.Coin == coin {
			return p
		}
	}
	return Position{Coin: coin, Szi: 0}
}

func parseOptionalFloat(s *string) *float64 {
	if s == nil || *s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseLeverage(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var asNum float64
	if err := json.Unmarshal(raw, &asNum); err == nil {
		return &asNum
	}
	var wrapped struct {
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return &wrapped.Value
	}
	return nil
}
