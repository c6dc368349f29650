package configs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Asset is one of the fixed tracked perpetual instruments.
type Asset string

const (
	HYPE Asset = "HYPE"
	BTC  Asset = "BTC"
	ETH  Asset = "ETH"
)

// TrackedAssets is the fixed set of perpetual instruments this engine
// observes.
var TrackedAssets = []Asset{HYPE, BTC, ETH}

// defaultEpsilonAbs is the per-asset absolute noise floor.
var defaultEpsilonAbs = map[Asset]float64{
	HYPE: 0.01,
	BTC:  0.0001,
	ETH:  0.001,
}

// AssetTable holds the epsilon_abs overrides, loadable from a YAML
// document whose epsilon_abs key maps asset name to absolute epsilon floor,
// falling back to the built-in defaults for any asset the file omits.
type AssetTable struct {
	EpsilonAbs map[Asset]float64 `yaml:"epsilon_abs"`
}

// LoadAssetTable reads an asset-table YAML file if present; a missing file
// is not an error, it just means the built-in defaults apply.
func LoadAssetTable(path string) (*AssetTable, error) {
	table := &AssetTable{EpsilonAbs: map[Asset]float64{}}
	for a, v := range defaultEpsilonAbs {
		table.EpsilonAbs[a] = v
	}

	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return table, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read asset table %s: %w", path, err)
	}

	var override AssetTable
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse asset table YAML: %w", err)
	}
	for a, v := range override.EpsilonAbs {
		table.EpsilonAbs[a] = v
	}
	return table, nil
}

// Epsilon returns the per-asset absolute noise floor, defaulting to the
// most conservative tracked value for an asset outside the fixed list.
func (t *AssetTable) Epsilon(asset Asset) float64 {
	if v, ok := t.EpsilonAbs[asset]; ok {
		return v
	}
	return defaultEpsilonAbs[BTC]
}
