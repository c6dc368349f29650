package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortsignal/engine/configs"
)

func f(v float64) *float64 { return &v }

func TestClassifyAdderLong(t *testing.T) {
	state := Classify(5.0, f(4.0), f(1.0), 0.1)
	assert.Equal(t, AdderLong, state)
}

func TestClassifyAdderShort(t *testing.T) {
	state := Classify(-5.0, f(-4.0), f(-1.0), 0.1)
	assert.Equal(t, AdderShort, state)
}

func TestClassifyReducer(t *testing.T) {
	state := Classify(1.0, f(5.0), f(-4.0), 0.1)
	assert.Equal(t, Reducer, state)
}

func TestClassifyFlatWithinEpsilon(t *testing.T) {
	state := Classify(5.0, f(5.05), f(-0.05), 0.1)
	assert.Equal(t, Flat, state)
}

func TestClassifyFlatWhenNoPrevious(t *testing.T) {
	state := Classify(5.0, nil, nil, 0.1)
	assert.Equal(t, Flat, state)
}

func TestEpsilonUsesFloorWithNoHistory(t *testing.T) {
	table, err := configs.LoadAssetTable("")
	require.NoError(t, err)
	eps := Epsilon(configs.HYPE, table, nil)
	assert.Equal(t, 0.01, eps)
}

func TestEpsilonUsesAdaptiveWhenLarger(t *testing.T) {
	table, err := configs.LoadAssetTable("")
	require.NoError(t, err)
	history := []float64{10, 20, 30, 40, 50}
	eps := Epsilon(configs.BTC, table, history)
	// median=30, 2% of 30 = 0.6, which dwarfs BTC's 0.0001 floor.
	assert.InDelta(t, 0.6, eps, 1e-9)
}
