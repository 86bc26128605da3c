package dispatch

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/bess/internal/sim"
)

func pair() []*sim.Asset {
	a := &sim.Asset{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000a"),
		CapacityMWhr: 100, MinMW: -40, MaxMW: 40}
	b := &sim.Asset{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000b"),
		CapacityMWhr: 300, MinMW: -20, MaxMW: 20}
	return []*sim.Asset{a, b}
}

func TestAllocateCleanSplit(t *testing.T) {
	allocs := Allocate(pair(), 10)
	require.Len(t, allocs, 2)
	assert.InDelta(t, 2.5, allocs[0].MW, residualTol)
	assert.InDelta(t, 7.5, allocs[1].MW, residualTol)
	assert.False(t, allocs[0].Clamped)
	assert.False(t, allocs[1].Clamped)
}

func TestAllocateNoResidual(t *testing.T) {
	allocs := Allocate(pair(), 20)
	assert.InDelta(t, 5.0, allocs[0].MW, residualTol)
	assert.InDelta(t, 15.0, allocs[1].MW, residualTol)
	assert.False(t, allocs[1].Clamped)
}

func TestAllocateRepairsClampResidual(t *testing.T) {
	allocs := Allocate(pair(), 35)

	// B saturates at 20, its 6.25 MW excess moves onto A's headroom.
	assert.InDelta(t, 15.0, allocs[0].MW, residualTol)
	assert.InDelta(t, 20.0, allocs[1].MW, residualTol)
	assert.True(t, allocs[1].Clamped)

	total := allocs[0].MW + allocs[1].MW
	assert.InDelta(t, 35.0, total, residualTol)
	assert.GreaterOrEqual(t, allocs[0].MW, -40.0)
	assert.LessOrEqual(t, allocs[0].MW, 40.0)
}

func TestAllocateStopsWithoutHeadroom(t *testing.T) {
	// 70 MW against 60 MW of total discharge capability: converges to the
	// limits and stops, everything clamped.
	allocs := Allocate(pair(), 70)
	assert.InDelta(t, 40.0, allocs[0].MW, residualTol)
	assert.InDelta(t, 20.0, allocs[1].MW, residualTol)
	assert.True(t, allocs[0].Clamped)
	assert.True(t, allocs[1].Clamped)
}

func TestAllocateChargeDirection(t *testing.T) {
	allocs := Allocate(pair(), -35)
	total := allocs[0].MW + allocs[1].MW
	assert.InDelta(t, -35.0, total, residualTol)
	assert.InDelta(t, -20.0, allocs[1].MW, residualTol)
	for i, a := range pair() {
		assert.GreaterOrEqual(t, allocs[i].MW, a.MinMW)
		assert.LessOrEqual(t, allocs[i].MW, a.MaxMW)
	}
}

func TestAllocateZeroCapacity(t *testing.T) {
	assets := pair()
	assets[0].CapacityMWhr = 0
	assets[1].CapacityMWhr = 0
	allocs := Allocate(assets, 10)
	for _, a := range allocs {
		assert.Zero(t, a.MWRaw)
		assert.Zero(t, a.MW)
		assert.False(t, a.Clamped)
	}
}

func TestAllocateDeterministic(t *testing.T) {
	first := Allocate(pair(), 33.3)
	second := Allocate(pair(), 33.3)
	require.Equal(t, first, second)
}

func TestAllocateConservationProperty(t *testing.T) {
	assets := pair()
	for _, mwTotal := range []float64{-60, -35, -10, -0.5, 0, 0.5, 10, 35, 55} {
		allocs := Allocate(assets, mwTotal)

		// Bounds hold unconditionally.
		var sum, maxSum, minSum float64
		for i, a := range assets {
			assert.GreaterOrEqual(t, allocs[i].MW, a.MinMW, "mw_total=%v", mwTotal)
			assert.LessOrEqual(t, allocs[i].MW, a.MaxMW, "mw_total=%v", mwTotal)
			sum += allocs[i].MW
			maxSum += a.MaxMW
			minSum += a.MinMW
		}
		// Conservation holds whenever the request fits inside the site's
		// aggregate limits.
		if mwTotal <= maxSum && mwTotal >= minSum {
			assert.InDelta(t, mwTotal, sum, 1e-6, "mw_total=%v", mwTotal)
		} else {
			assert.False(t, math.IsNaN(sum))
		}
	}
}
