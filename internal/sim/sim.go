// Package sim holds the shared battery model: asset limits, mutable state and
// the tick step. Both the headend and the edge agent advance assets through
// the same Tick so their views of a battery never drift.
package sim

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Eps is the SOC boundary tolerance in MWh.
const Eps = 1e-6

// Telemetry status values.
const (
	StatusIdle        = "idle"
	StatusCharging    = "charging"
	StatusDischarging = "discharging"
)

// Asset is one battery's identity and electrical limits. Read-mostly; built
// once from the catalogue and never mutated afterwards.
type Asset struct {
	ID               uuid.UUID `json:"id"`
	SiteID           uuid.UUID `json:"site_id"`
	SiteName         string    `json:"site_name"`
	Name             string    `json:"name"`
	Location         string    `json:"location"`
	CapacityMWhr     float64   `json:"capacity_mwhr"`
	MaxMW            float64   `json:"max_mw"`
	MinMW            float64   `json:"min_mw"`
	MinSocPct        float64   `json:"min_soc_pct"`
	MaxSocPct        float64   `json:"max_soc_pct"`
	Efficiency       float64   `json:"efficiency"`
	RampRateMWPerMin float64   `json:"ramp_rate_mw_per_min"`
}

// SocBounds returns the allowed SOC window in MWh derived from the asset's
// capacity and SOC percentage band. Falls back to [0, capacity] when the band
// is inverted.
func (a *Asset) SocBounds() (minMWhr, maxMWhr float64) {
	cap := math.Max(a.CapacityMWhr, 0)
	minPct := clamp(a.MinSocPct, 0, 100)
	maxPct := clamp(a.MaxSocPct, 0, 100)
	minMWhr = cap * minPct / 100
	maxMWhr = cap * maxPct / 100
	if minMWhr > maxMWhr {
		return 0, cap
	}
	return minMWhr, maxMWhr
}

// State is the mutable per-asset battery state. The simulator owns it; readers
// take copies.
type State struct {
	SocMWhr    float64 `json:"soc_mwhr"`
	CurrentMW  float64 `json:"current_mw"`
	SetpointMW float64 `json:"setpoint_mw"`
}

// Value is one entry of the typed telemetry extras bag. Exactly one field is
// set.
type Value struct {
	F64  *float64 `json:"f64,omitempty"`
	I64  *int64   `json:"i64,omitempty"`
	U64  *uint64  `json:"u64,omitempty"`
	Bool *bool    `json:"bool,omitempty"`
	Str  *string  `json:"string,omitempty"`
}

// Float64Value wraps a float for the extras bag.
func Float64Value(v float64) Value { return Value{F64: &v} }

// Int64Value wraps an int for the extras bag.
func Int64Value(v int64) Value { return Value{I64: &v} }

// Uint64Value wraps an unsigned int for the extras bag.
func Uint64Value(v uint64) Value { return Value{U64: &v} }

// BoolValue wraps a bool for the extras bag.
func BoolValue(v bool) Value { return Value{Bool: &v} }

// StringValue wraps a string for the extras bag.
func StringValue(v string) Value { return Value{Str: &v} }

// Telemetry is one observation of an asset: the tick output plus device-level
// readings the agent attaches.
type Telemetry struct {
	AssetID      uuid.UUID `json:"asset_id"`
	SiteID       uuid.UUID `json:"site_id"`
	SiteName     string    `json:"site_name"`
	Timestamp    time.Time `json:"timestamp"`
	SocMWhr      float64   `json:"soc_mwhr"`
	SocPct       float64   `json:"soc_pct"`
	CapacityMWhr float64   `json:"capacity_mwhr"`
	CurrentMW    float64   `json:"current_mw"`
	SetpointMW   float64   `json:"setpoint_mw"`
	MaxMW        float64   `json:"max_mw"`
	MinMW        float64   `json:"min_mw"`
	Status       string    `json:"status"`

	// Device-level readings; zero when the producer has no hardware behind it.
	VoltageV             float64 `json:"voltage_v"`
	CurrentA             float64 `json:"current_a"`
	DCBusV               float64 `json:"dc_bus_v"`
	DCBusA               float64 `json:"dc_bus_a"`
	TemperatureCellF     float64 `json:"temperature_cell_f"`
	TemperatureModuleF   float64 `json:"temperature_module_f"`
	TemperatureAmbientF  float64 `json:"temperature_ambient_f"`
	SohPct               float64 `json:"soh_pct"`
	CycleCount           int64   `json:"cycle_count"`
	EnergyInMWh          float64 `json:"energy_in_mwh"`
	EnergyOutMWh         float64 `json:"energy_out_mwh"`
	AvailableChargeKW    float64 `json:"available_charge_kw"`
	AvailableDischargeKW float64 `json:"available_discharge_kw"`

	Extras map[string]Value `json:"extras,omitempty"`
}

// Dispatch is one accepted (or rejected) setpoint command. Ack fields are
// late-bound when the agent confirms.
type Dispatch struct {
	ID          uuid.UUID  `json:"id"`
	AssetID     uuid.UUID  `json:"asset_id"`
	MW          float64    `json:"mw"` // positive = discharge, negative = charge
	DurationS   *int64     `json:"duration_s,omitempty"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Clamped     bool       `json:"clamped"`
	AckStatus   string     `json:"ack_status,omitempty"`
	AckedAt     *time.Time `json:"acked_at,omitempty"`
	AckReason   string     `json:"ack_reason,omitempty"`
}

// Dispatch statuses.
const (
	DispatchAccepted = "accepted"
	DispatchRejected = "rejected"
)

// Dispatch ack statuses reported by agents.
const (
	AckApplied  = "applied"
	AckRejected = "rejected"
)

// Event is a discrete occurrence attached to an asset (SOC boundary reached,
// agent fault, operator note).
type Event struct {
	ID        uuid.UUID `json:"id"`
	AssetID   uuid.UUID `json:"asset_id"`
	SiteID    uuid.UUID `json:"site_id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
}

// Event severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityAlarm   = "alarm"
	SeverityClear   = "clear"
)

// Tick advances one asset state by dt seconds and returns the resulting
// telemetry snapshot. Deterministic apart from the timestamp.
//
// The model: ramp current toward the setpoint at the asset's ramp rate,
// integrate SOC with a first-order efficiency adjustment, clamp into the SOC
// band, and zero the setpoint if the battery hits a boundary while still being
// pushed into it.
func Tick(asset *Asset, state *State, dtSecs float64) Telemetry {
	rampPerSec := asset.RampRateMWPerMin / 60
	maxDelta := rampPerSec * dtSecs
	delta := clamp(state.SetpointMW-state.CurrentMW, -maxDelta, maxDelta)
	state.CurrentMW = clamp(state.CurrentMW+delta, asset.MinMW, asset.MaxMW)

	// Positive MW discharges (SOC down); negative charges (SOC up).
	energyMWh := state.CurrentMW * dtSecs / 3600
	adjusted := energyMWh
	if asset.Efficiency > 0 {
		if energyMWh >= 0 {
			adjusted = energyMWh / asset.Efficiency
		} else {
			adjusted = energyMWh * asset.Efficiency
		}
	}
	minSoc, maxSoc := asset.SocBounds()
	state.SocMWhr = clamp(state.SocMWhr-adjusted, minSoc, maxSoc)

	// At a SOC boundary and still moving into it: stop dispatching.
	if state.SocMWhr <= minSoc+Eps && state.CurrentMW > 0 {
		state.SetpointMW = 0
		state.CurrentMW = 0
	} else if state.SocMWhr >= maxSoc-Eps && state.CurrentMW < 0 {
		state.SetpointMW = 0
		state.CurrentMW = 0
	}

	status := StatusIdle
	switch {
	case state.CurrentMW > 0.1:
		status = StatusDischarging
	case state.CurrentMW < -0.1:
		status = StatusCharging
	}

	socPct := 0.0
	if asset.CapacityMWhr > 0 {
		socPct = clamp(state.SocMWhr/asset.CapacityMWhr*100, 0, 100)
	}

	return Telemetry{
		AssetID:      asset.ID,
		SiteID:       asset.SiteID,
		SiteName:     asset.SiteName,
		Timestamp:    time.Now().UTC(),
		SocMWhr:      state.SocMWhr,
		SocPct:       socPct,
		CapacityMWhr: asset.CapacityMWhr,
		CurrentMW:    state.CurrentMW,
		SetpointMW:   state.SetpointMW,
		MaxMW:        asset.MaxMW,
		MinMW:        asset.MinMW,
		Status:       status,
	}
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
