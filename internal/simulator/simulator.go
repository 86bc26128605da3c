// Package simulator owns the mutable per-asset battery state and the dispatch
// acceptance gates. It is the single writer for AssetState; everyone else gets
// copies.
package simulator

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/bess/internal/catalog"
	"github.com/voltgrid/bess/internal/sim"
)

// Simulator tracks state and the last accepted dispatch per asset.
type Simulator struct {
	mu           sync.RWMutex
	reg          *catalog.Registry
	states       map[uuid.UUID]*sim.State
	lastDispatch map[uuid.UUID]sim.Dispatch
	seeded       map[uuid.UUID]bool
	logger       *log.Logger
}

// New seeds every catalogued asset at the midpoint of its SOC band with a
// synthetic accepted 0 MW dispatch, so bootstrap always has something to hand
// out.
func New(reg *catalog.Registry) *Simulator {
	s := &Simulator{
		reg:          reg,
		states:       make(map[uuid.UUID]*sim.State),
		lastDispatch: make(map[uuid.UUID]sim.Dispatch),
		seeded:       make(map[uuid.UUID]bool),
		logger:       log.New(log.Writer(), "[simulator] ", log.LstdFlags),
	}
	now := time.Now().UTC()
	for _, a := range reg.ListAll() {
		s.states[a.ID] = &sim.State{
			SocMWhr: a.CapacityMWhr * (a.MinSocPct + a.MaxSocPct) / 200,
		}
		s.lastDispatch[a.ID] = sim.Dispatch{
			ID:          uuid.New(),
			AssetID:     a.ID,
			MW:          0,
			Status:      sim.DispatchAccepted,
			SubmittedAt: now,
		}
		s.seeded[a.ID] = true
	}
	return s
}

// Hydrate overwrites state from persisted telemetry, reclamping SOC into the
// asset's band. Unknown assets are skipped.
func (s *Simulator) Hydrate(rows []sim.Telemetry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		asset, ok := s.reg.ByID(row.AssetID)
		if !ok {
			continue
		}
		st, ok := s.states[row.AssetID]
		if !ok {
			continue
		}
		minSoc, maxSoc := asset.SocBounds()
		st.SocMWhr = clamp(row.SocMWhr, minSoc, maxSoc)
		st.CurrentMW = clamp(row.CurrentMW, asset.MinMW, asset.MaxMW)
		st.SetpointMW = clamp(row.SetpointMW, asset.MinMW, asset.MaxMW)
		s.logger.Printf("hydrated asset=%s soc_mwhr=%.4f current_mw=%.3f", row.AssetID, st.SocMWhr, st.CurrentMW)
	}
}

// SetDispatch runs the SOC and limit gates, and on acceptance records the new
// setpoint and a fresh dispatch. socOverride, when non-nil, substitutes the
// latest observed SOC for the gate (live telemetry beats the local model).
func (s *Simulator) SetDispatch(assetID uuid.UUID, mw float64, durationS *int64, clamped bool, socOverride *float64) (sim.Dispatch, error) {
	asset, ok := s.reg.ByID(assetID)
	if !ok {
		return sim.Dispatch{}, fmt.Errorf("asset %s: %w", assetID, sim.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[assetID]

	soc := st.SocMWhr
	if socOverride != nil {
		soc = *socOverride
	}
	minSoc, maxSoc := asset.SocBounds()
	if mw > 0 && soc <= minSoc+sim.Eps {
		return sim.Dispatch{}, fmt.Errorf("asset %s soc=%.6f: %w", assetID, soc, sim.ErrAtMinSoc)
	}
	if mw < 0 && soc >= maxSoc-sim.Eps {
		return sim.Dispatch{}, fmt.Errorf("asset %s soc=%.6f: %w", assetID, soc, sim.ErrAtMaxSoc)
	}
	if mw > asset.MaxMW || mw < asset.MinMW {
		return sim.Dispatch{}, fmt.Errorf("asset %s mw=%.3f limits=[%.3f,%.3f]: %w",
			assetID, mw, asset.MinMW, asset.MaxMW, sim.ErrOutOfBounds)
	}

	st.SetpointMW = mw
	d := sim.Dispatch{
		ID:          uuid.New(),
		AssetID:     assetID,
		MW:          mw,
		DurationS:   durationS,
		Status:      sim.DispatchAccepted,
		SubmittedAt: time.Now().UTC(),
		Clamped:     clamped,
	}
	s.lastDispatch[assetID] = d
	delete(s.seeded, assetID)
	return d, nil
}

// ApplyTelemetry folds an observed reading back into the local model so the
// headend's copy tracks the agent's.
func (s *Simulator) ApplyTelemetry(t *sim.Telemetry) {
	asset, ok := s.reg.ByID(t.AssetID)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[t.AssetID]
	if !ok {
		return
	}
	minSoc, maxSoc := asset.SocBounds()
	st.SocMWhr = clamp(t.SocMWhr, minSoc, maxSoc)
	st.CurrentMW = clamp(t.CurrentMW, asset.MinMW, asset.MaxMW)
	st.SetpointMW = clamp(t.SetpointMW, asset.MinMW, asset.MaxMW)
}

// StateOf returns a copy of the asset's state.
func (s *Simulator) StateOf(assetID uuid.UUID) (sim.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[assetID]
	if !ok {
		return sim.State{}, false
	}
	return *st, true
}

// LastDispatch returns the most recent accepted dispatch for the asset.
func (s *Simulator) LastDispatch(assetID uuid.UUID) (sim.Dispatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.lastDispatch[assetID]
	return d, ok
}

// LastOperatorDispatch is LastDispatch minus the startup seed, so recovery
// paths fall through to the journal instead of handing out the placeholder.
func (s *Simulator) LastOperatorDispatch(assetID uuid.UUID) (sim.Dispatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.seeded[assetID] {
		return sim.Dispatch{}, false
	}
	d, ok := s.lastDispatch[assetID]
	return d, ok
}

// SyntheticTick produces a zero-advance telemetry snapshot from the current
// state without mutating it. Used when no real telemetry has arrived yet.
func (s *Simulator) SyntheticTick(assetID uuid.UUID) (sim.Telemetry, bool) {
	asset, ok := s.reg.ByID(assetID)
	if !ok {
		return sim.Telemetry{}, false
	}
	s.mu.RLock()
	st, ok := s.states[assetID]
	if !ok {
		s.mu.RUnlock()
		return sim.Telemetry{}, false
	}
	cp := *st
	s.mu.RUnlock()
	return sim.Tick(asset, &cp, 0), true
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
