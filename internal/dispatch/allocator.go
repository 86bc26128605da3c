package dispatch

import (
	"math"

	"github.com/google/uuid"

	"github.com/voltgrid/bess/internal/sim"
)

// residualTol is the allocator's convergence tolerance in MW.
const residualTol = 1e-6

// maxRepairPasses bounds the residual repair loop. When headroom exists only
// in the wrong direction the loop stops short of mw_total on purpose; the
// affected allocations carry clamped=true.
const maxRepairPasses = 3

// Allocation is one asset's share of a site dispatch.
type Allocation struct {
	AssetID uuid.UUID `json:"asset_id"`
	MWRaw   float64   `json:"mw_raw"`
	MW      float64   `json:"mw"`
	Clamped bool      `json:"clamped"`
}

// Allocate splits mwTotal across the assets proportional to capacity, clamps
// each share into the asset's limits and repairs the clamp residual by
// redistributing over remaining headroom. Deterministic given the asset
// order; callers pass assets sorted by id.
func Allocate(assets []*sim.Asset, mwTotal float64) []Allocation {
	out := make([]Allocation, len(assets))
	var sumCap float64
	for _, a := range assets {
		sumCap += a.CapacityMWhr
	}

	if sumCap <= 0 {
		for i, a := range assets {
			out[i] = Allocation{AssetID: a.ID}
		}
		return out
	}

	for i, a := range assets {
		raw := mwTotal * a.CapacityMWhr / sumCap
		out[i] = Allocation{
			AssetID: a.ID,
			MWRaw:   raw,
			MW:      clamp(raw, a.MinMW, a.MaxMW),
		}
	}

	for pass := 0; pass < maxRepairPasses; pass++ {
		var sum float64
		for i := range out {
			sum += out[i].MW
		}
		residual := mwTotal - sum
		if math.Abs(residual) <= residualTol {
			break
		}

		// Headroom in the residual's direction only.
		headroom := make([]float64, len(assets))
		var totalHeadroom float64
		for i, a := range assets {
			var h float64
			if residual > 0 {
				h = a.MaxMW - out[i].MW
			} else {
				h = a.MinMW - out[i].MW
			}
			if (residual > 0 && h > 0) || (residual < 0 && h < 0) {
				headroom[i] = h
				totalHeadroom += math.Abs(h)
			}
		}
		if totalHeadroom <= residualTol {
			break
		}
		for i, a := range assets {
			if headroom[i] == 0 {
				continue
			}
			share := residual * math.Abs(headroom[i]) / totalHeadroom
			out[i].MW = clamp(out[i].MW+share, a.MinMW, a.MaxMW)
		}
	}

	for i := range out {
		out[i].Clamped = math.Abs(out[i].MWRaw-out[i].MW) > residualTol
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
