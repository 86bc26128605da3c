package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/bess/internal/headend"
	"github.com/voltgrid/bess/internal/sim"
)

// AssetView is an asset's configuration merged with its latest observation.
// Live fields are nil until telemetry (real or synthetic) exists.
type AssetView struct {
	sim.Asset
	Online     bool       `json:"online"`
	SocMWhr    *float64   `json:"soc_mwhr,omitempty"`
	SocPct     *float64   `json:"soc_pct,omitempty"`
	CurrentMW  *float64   `json:"current_mw,omitempty"`
	SetpointMW *float64   `json:"setpoint_mw,omitempty"`
	Status     *string    `json:"status,omitempty"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
}

func buildAssetView(state *headend.AppState, asset *sim.Asset) AssetView {
	view := AssetView{
		Asset:  *asset,
		Online: state.Streams.IsOnline(asset.ID),
	}
	tel, ok := state.Latest(asset.ID)
	if ok {
		ts := tel.Timestamp
		view.LastSeen = &ts
	} else {
		// Nothing observed yet: a zero-advance tick renders the seeded state.
		tel, ok = state.Sim.SyntheticTick(asset.ID)
		if !ok {
			return view
		}
	}
	view.SocMWhr = &tel.SocMWhr
	view.SocPct = &tel.SocPct
	view.CurrentMW = &tel.CurrentMW
	view.SetpointMW = &tel.SetpointMW
	view.Status = &tel.Status
	return view
}

// SiteView is the per-site rollup: summed ratings, capacity-weighted band
// parameters and summed live state where telemetry exists.
type SiteView struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Location         string    `json:"location"`
	AssetCount       int       `json:"asset_count"`
	OnlineCount      int       `json:"online_count"`
	CapacityMWhr     float64   `json:"capacity_mwhr"`
	MaxMW            float64   `json:"max_mw"`
	MinMW            float64   `json:"min_mw"`
	MinSocPct        float64   `json:"min_soc_pct"`
	MaxSocPct        float64   `json:"max_soc_pct"`
	Efficiency       float64   `json:"efficiency"`
	RampRateMWPerMin float64   `json:"ramp_rate_mw_per_min"`
	SocMWhr          *float64  `json:"soc_mwhr,omitempty"`
	CurrentMW        *float64  `json:"current_mw,omitempty"`
	SetpointMW       *float64  `json:"setpoint_mw,omitempty"`
}

func buildSiteView(state *headend.AppState, siteID uuid.UUID) SiteView {
	site, _ := state.Catalog.Site(siteID)
	view := SiteView{ID: site.ID, Name: site.Name, Location: site.Location}

	assets := state.Catalog.BySite(siteID)
	view.AssetCount = len(assets)

	var weighted struct{ minPct, maxPct, eff, ramp float64 }
	var socSum, curSum, spSum float64
	live := 0
	for _, a := range assets {
		view.CapacityMWhr += a.CapacityMWhr
		view.MaxMW += a.MaxMW
		view.MinMW += a.MinMW
		weighted.minPct += a.MinSocPct * a.CapacityMWhr
		weighted.maxPct += a.MaxSocPct * a.CapacityMWhr
		weighted.eff += a.Efficiency * a.CapacityMWhr
		weighted.ramp += a.RampRateMWPerMin * a.CapacityMWhr
		if state.Streams.IsOnline(a.ID) {
			view.OnlineCount++
		}
		if tel, ok := state.Latest(a.ID); ok {
			live++
			socSum += tel.SocMWhr
			curSum += tel.CurrentMW
			spSum += tel.SetpointMW
		}
	}
	if view.CapacityMWhr > 0 {
		view.MinSocPct = weighted.minPct / view.CapacityMWhr
		view.MaxSocPct = weighted.maxPct / view.CapacityMWhr
		view.Efficiency = weighted.eff / view.CapacityMWhr
		view.RampRateMWPerMin = weighted.ramp / view.CapacityMWhr
	}
	if live > 0 {
		view.SocMWhr = &socSum
		view.CurrentMW = &curSum
		view.SetpointMW = &spSum
	}
	return view
}
