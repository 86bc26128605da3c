// Package pb defines the agent link wire messages and the gRPC service
// plumbing for them. The messages are hand-written Go structs carried by a
// JSON codec; no generated code.
package pb

import "time"

// AssetDescriptor names one asset behind a gateway agent.
type AssetDescriptor struct {
	AssetID   string `json:"asset_id"`
	SiteID    string `json:"site_id"`
	AssetName string `json:"asset_name"`
	SiteName  string `json:"site_name"`
	Location  string `json:"location,omitempty"`
}

// Register announces the assets a connection speaks for. Legacy single-asset
// agents leave Assets empty and fill only the primary fields.
type Register struct {
	PrimaryAssetID string            `json:"primary_asset_id"`
	PrimarySiteID  string            `json:"primary_site_id"`
	AssetName      string            `json:"asset_name"`
	SiteName       string            `json:"site_name"`
	GatewayID      string            `json:"gateway_id,omitempty"`
	Assets         []AssetDescriptor `json:"assets,omitempty"`
}

// Value is one typed telemetry extra. Exactly one field is set.
type Value struct {
	F64  *float64 `json:"f64,omitempty"`
	I64  *int64   `json:"i64,omitempty"`
	U64  *uint64  `json:"u64,omitempty"`
	Bool *bool    `json:"bool,omitempty"`
	Str  *string  `json:"string,omitempty"`
}

// Telemetry is one battery observation on the wire.
type Telemetry struct {
	AssetID      string    `json:"asset_id"`
	SiteID       string    `json:"site_id"`
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

	VoltageV             float64 `json:"voltage_v,omitempty"`
	CurrentA             float64 `json:"current_a,omitempty"`
	DCBusV               float64 `json:"dc_bus_v,omitempty"`
	DCBusA               float64 `json:"dc_bus_a,omitempty"`
	TemperatureCellF     float64 `json:"temperature_cell_f,omitempty"`
	TemperatureModuleF   float64 `json:"temperature_module_f,omitempty"`
	TemperatureAmbientF  float64 `json:"temperature_ambient_f,omitempty"`
	SohPct               float64 `json:"soh_pct,omitempty"`
	CycleCount           int64   `json:"cycle_count,omitempty"`
	EnergyInMWh          float64 `json:"energy_in_mwh,omitempty"`
	EnergyOutMWh         float64 `json:"energy_out_mwh,omitempty"`
	AvailableChargeKW    float64 `json:"available_charge_kw,omitempty"`
	AvailableDischargeKW float64 `json:"available_discharge_kw,omitempty"`

	Extras map[string]Value `json:"extras,omitempty"`
}

// Heartbeat is a diagnostic liveness ping.
type Heartbeat struct {
	AssetID   string    `json:"asset_id"`
	Timestamp time.Time `json:"timestamp"`
}

// DispatchAck confirms (or refuses) a delivered setpoint.
type DispatchAck struct {
	DispatchID string    `json:"dispatch_id"`
	AssetID    string    `json:"asset_id"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason,omitempty"`
}

// Event is an agent-originated discrete occurrence.
type Event struct {
	AssetID   string    `json:"asset_id"`
	SiteID    string    `json:"site_id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
}

// AgentToHeadend is the inbound tagged union. Exactly one field is set.
type AgentToHeadend struct {
	Register    *Register    `json:"register,omitempty"`
	Telemetry   *Telemetry   `json:"telemetry,omitempty"`
	Heartbeat   *Heartbeat   `json:"heartbeat,omitempty"`
	DispatchAck *DispatchAck `json:"dispatch_ack,omitempty"`
	Event       *Event       `json:"event,omitempty"`
}

// Setpoint commands a power level. AssetID, when it names a known local asset,
// takes precedence over SiteID; SiteID alone fans out across the gateway's
// local assets of that site. GroupID is reserved.
type Setpoint struct {
	AssetID    string  `json:"asset_id"`
	MW         float64 `json:"mw"`
	DurationS  *int64  `json:"duration_s,omitempty"`
	SiteID     string  `json:"site_id,omitempty"`
	GroupID    string  `json:"group_id,omitempty"`
	DispatchID string  `json:"dispatch_id,omitempty"`
}

// HeadendToAgent is the outbound tagged union.
type HeadendToAgent struct {
	Setpoint *Setpoint `json:"setpoint,omitempty"`
}

// BootstrapRequest asks for authoritative state per asset.
type BootstrapRequest struct {
	AssetIDs []string `json:"asset_ids"`
}

// AssetBootstrap is the recovery record for one asset.
type AssetBootstrap struct {
	AssetID   string     `json:"asset_id"`
	Telemetry *Telemetry `json:"telemetry,omitempty"`
	Setpoint  *Setpoint  `json:"setpoint,omitempty"`
}

// BootstrapResponse answers a BootstrapRequest, one entry per requested id.
type BootstrapResponse struct {
	Assets []AssetBootstrap `json:"assets"`
}
