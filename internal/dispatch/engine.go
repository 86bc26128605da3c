// Package dispatch validates operator dispatch requests, fans site requests
// out across online assets and drives the delivery/parking path.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/bess/internal/catalog"
	"github.com/voltgrid/bess/internal/journal"
	"github.com/voltgrid/bess/internal/metrics"
	"github.com/voltgrid/bess/internal/registry"
	"github.com/voltgrid/bess/internal/sim"
	"github.com/voltgrid/bess/internal/simulator"
)

// Request is an operator dispatch submission. Exactly one of AssetID or
// SiteID must be set.
type Request struct {
	AssetID   *uuid.UUID `json:"asset_id,omitempty"`
	SiteID    *uuid.UUID `json:"site_id,omitempty"`
	MW        float64    `json:"mw"`
	DurationS *int64     `json:"duration_s,omitempty"`
}

// SiteResult is the fan-out outcome for a site request. Rejected sub-requests
// appear as rejected dispatch rows next to the accepted ones.
type SiteResult struct {
	SiteID      uuid.UUID      `json:"site_id"`
	MWTotal     float64        `json:"mw_total"`
	Allocations []Allocation   `json:"allocations"`
	Dispatches  []sim.Dispatch `json:"dispatches"`
}

// Result is the outcome of a submission; exactly one field is set.
type Result struct {
	Dispatch *sim.Dispatch `json:"dispatch,omitempty"`
	Site     *SiteResult   `json:"site,omitempty"`
}

// SocSource supplies the freshest observed SOC for the dispatch gate. Live
// telemetry beats the headend's local model.
type SocSource interface {
	LatestSoc(assetID uuid.UUID) (float64, bool)
}

// Engine wires the validation, allocation, simulator gates, journal and
// delivery together.
type Engine struct {
	reg     *catalog.Registry
	sim     *simulator.Simulator
	streams *registry.Registry
	jnl     journal.Journal // may be nil
	soc     SocSource
	met     *metrics.Metrics
	logger  *log.Logger
}

// NewEngine builds an engine. jnl may be nil for journal-less operation.
func NewEngine(reg *catalog.Registry, s *simulator.Simulator, streams *registry.Registry,
	jnl journal.Journal, soc SocSource, met *metrics.Metrics) *Engine {
	return &Engine{
		reg:     reg,
		sim:     s,
		streams: streams,
		jnl:     jnl,
		soc:     soc,
		met:     met,
		logger:  log.New(log.Writer(), "[dispatch] ", log.LstdFlags),
	}
}

// Submit validates and executes the request.
func (e *Engine) Submit(ctx context.Context, req Request) (*Result, error) {
	if math.IsNaN(req.MW) || math.IsInf(req.MW, 0) {
		return nil, fmt.Errorf("mw must be finite: %w", sim.ErrBadRequest)
	}
	switch {
	case req.AssetID != nil && req.SiteID != nil:
		return nil, fmt.Errorf("asset_id and site_id are mutually exclusive: %w", sim.ErrBadRequest)
	case req.AssetID == nil && req.SiteID == nil:
		return nil, fmt.Errorf("one of asset_id or site_id is required: %w", sim.ErrBadRequest)
	case req.AssetID != nil:
		d, err := e.dispatchAsset(ctx, *req.AssetID, req.MW, req.DurationS, false)
		if err != nil {
			e.met.DispatchSubmitted.WithLabelValues("rejected").Inc()
			return nil, err
		}
		e.met.DispatchSubmitted.WithLabelValues("accepted").Inc()
		return &Result{Dispatch: d}, nil
	default:
		site, err := e.dispatchSite(ctx, *req.SiteID, req.MW, req.DurationS)
		if err != nil {
			e.met.DispatchSubmitted.WithLabelValues("rejected").Inc()
			return nil, err
		}
		e.met.DispatchSubmitted.WithLabelValues("accepted").Inc()
		return &Result{Site: site}, nil
	}
}

// dispatchAsset runs the per-asset path: gate, journal, deliver-or-park. The
// simulator lock is released before any journal or mailbox I/O.
func (e *Engine) dispatchAsset(ctx context.Context, assetID uuid.UUID, mw float64, durationS *int64, clamped bool) (*sim.Dispatch, error) {
	var socOverride *float64
	if soc, ok := e.soc.LatestSoc(assetID); ok {
		socOverride = &soc
	}
	d, err := e.sim.SetDispatch(assetID, mw, durationS, clamped, socOverride)
	if err != nil {
		return nil, err
	}

	if e.jnl != nil {
		if jerr := e.jnl.AppendDispatch(ctx, d); jerr != nil {
			e.met.JournalErrors.WithLabelValues("append_dispatch").Inc()
			e.logger.Printf("journal append failed dispatch=%s: %v", d.ID, jerr)
		}
	}

	if serr := e.streams.SendOrPark(d); serr != nil {
		e.met.SetpointsParked.Inc()
		e.met.PendingSetpoints.Set(float64(e.streams.PendingCount()))
		e.logger.Printf("parked setpoint asset=%s dispatch=%s mw=%.3f: %v", assetID, d.ID, mw, serr)
	} else {
		e.met.SetpointsDelivered.Inc()
	}
	return &d, nil
}

// dispatchSite allocates across the site's online assets and runs the
// per-asset path for each share.
func (e *Engine) dispatchSite(ctx context.Context, siteID uuid.UUID, mwTotal float64, durationS *int64) (*SiteResult, error) {
	if _, ok := e.reg.Site(siteID); !ok {
		return nil, fmt.Errorf("site %s: %w", siteID, sim.ErrNotFound)
	}
	var online []*sim.Asset
	for _, a := range e.reg.BySite(siteID) {
		if e.streams.IsOnline(a.ID) {
			online = append(online, a)
		}
	}
	if len(online) == 0 {
		return nil, fmt.Errorf("site %s: %w", siteID, sim.ErrNoOnlineAssets)
	}

	var sumCap float64
	for _, a := range online {
		sumCap += a.CapacityMWhr
	}
	if sumCap <= 0 {
		// Zero-capacity site degenerates to all-zero allocations.
		e.logger.Printf("site=%s has no capacity, dispatching zeros", siteID)
	}
	allocations := Allocate(online, mwTotal)

	result := &SiteResult{
		SiteID:      siteID,
		MWTotal:     mwTotal,
		Allocations: allocations,
	}
	accepted := 0
	for _, alloc := range allocations {
		d, err := e.dispatchAsset(ctx, alloc.AssetID, alloc.MW, durationS, alloc.Clamped)
		if err != nil {
			e.logger.Printf("site=%s asset=%s rejected mw=%.3f: %v", siteID, alloc.AssetID, alloc.MW, err)
			rejected := sim.Dispatch{
				ID:          uuid.New(),
				AssetID:     alloc.AssetID,
				MW:          alloc.MW,
				DurationS:   durationS,
				Status:      sim.DispatchRejected,
				Reason:      err.Error(),
				SubmittedAt: time.Now().UTC(),
				Clamped:     alloc.Clamped,
			}
			if e.jnl != nil {
				if jerr := e.jnl.AppendDispatch(ctx, rejected); jerr != nil {
					e.met.JournalErrors.WithLabelValues("append_dispatch").Inc()
					e.logger.Printf("journal append failed dispatch=%s: %v", rejected.ID, jerr)
				}
			}
			result.Dispatches = append(result.Dispatches, rejected)
			continue
		}
		accepted++
		result.Dispatches = append(result.Dispatches, *d)
	}
	if accepted == 0 {
		return nil, fmt.Errorf("site %s: every allocation was rejected: %w", siteID, sim.ErrBadRequest)
	}
	return result, nil
}
