package agentlink

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/voltgrid/bess/internal/sim"
	"github.com/voltgrid/bess/pb"
)

func valuesToSim(in map[string]pb.Value) map[string]sim.Value {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]sim.Value, len(in))
	for k, v := range in {
		out[k] = sim.Value{F64: v.F64, I64: v.I64, U64: v.U64, Bool: v.Bool, Str: v.Str}
	}
	return out
}

func valuesToWire(in map[string]sim.Value) map[string]pb.Value {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]pb.Value, len(in))
	for k, v := range in {
		out[k] = pb.Value{F64: v.F64, I64: v.I64, U64: v.U64, Bool: v.Bool, Str: v.Str}
	}
	return out
}

// TelemetryFromWire decodes a wire frame into the domain record.
func TelemetryFromWire(t *pb.Telemetry) (sim.Telemetry, error) {
	assetID, err := uuid.Parse(t.AssetID)
	if err != nil {
		return sim.Telemetry{}, fmt.Errorf("telemetry asset_id %q: %w", t.AssetID, sim.ErrBadRequest)
	}
	siteID, err := uuid.Parse(t.SiteID)
	if err != nil {
		return sim.Telemetry{}, fmt.Errorf("telemetry site_id %q: %w", t.SiteID, sim.ErrBadRequest)
	}
	return sim.Telemetry{
		AssetID:      assetID,
		SiteID:       siteID,
		SiteName:     t.SiteName,
		Timestamp:    t.Timestamp,
		SocMWhr:      t.SocMWhr,
		SocPct:       t.SocPct,
		CapacityMWhr: t.CapacityMWhr,
		CurrentMW:    t.CurrentMW,
		SetpointMW:   t.SetpointMW,
		MaxMW:        t.MaxMW,
		MinMW:        t.MinMW,
		Status:       t.Status,

		VoltageV:             t.VoltageV,
		CurrentA:             t.CurrentA,
		DCBusV:               t.DCBusV,
		DCBusA:               t.DCBusA,
		TemperatureCellF:     t.TemperatureCellF,
		TemperatureModuleF:   t.TemperatureModuleF,
		TemperatureAmbientF:  t.TemperatureAmbientF,
		SohPct:               t.SohPct,
		CycleCount:           t.CycleCount,
		EnergyInMWh:          t.EnergyInMWh,
		EnergyOutMWh:         t.EnergyOutMWh,
		AvailableChargeKW:    t.AvailableChargeKW,
		AvailableDischargeKW: t.AvailableDischargeKW,

		Extras: valuesToSim(t.Extras),
	}, nil
}

// TelemetryToWire encodes a domain record for the wire.
func TelemetryToWire(t *sim.Telemetry) *pb.Telemetry {
	return &pb.Telemetry{
		AssetID:      t.AssetID.String(),
		SiteID:       t.SiteID.String(),
		SiteName:     t.SiteName,
		Timestamp:    t.Timestamp,
		SocMWhr:      t.SocMWhr,
		SocPct:       t.SocPct,
		CapacityMWhr: t.CapacityMWhr,
		CurrentMW:    t.CurrentMW,
		SetpointMW:   t.SetpointMW,
		MaxMW:        t.MaxMW,
		MinMW:        t.MinMW,
		Status:       t.Status,

		VoltageV:             t.VoltageV,
		CurrentA:             t.CurrentA,
		DCBusV:               t.DCBusV,
		DCBusA:               t.DCBusA,
		TemperatureCellF:     t.TemperatureCellF,
		TemperatureModuleF:   t.TemperatureModuleF,
		TemperatureAmbientF:  t.TemperatureAmbientF,
		SohPct:               t.SohPct,
		CycleCount:           t.CycleCount,
		EnergyInMWh:          t.EnergyInMWh,
		EnergyOutMWh:         t.EnergyOutMWh,
		AvailableChargeKW:    t.AvailableChargeKW,
		AvailableDischargeKW: t.AvailableDischargeKW,

		Extras: valuesToWire(t.Extras),
	}
}

// SetpointFromDispatch encodes a dispatch for delivery.
func SetpointFromDispatch(d *sim.Dispatch) *pb.Setpoint {
	return &pb.Setpoint{
		AssetID:    d.AssetID.String(),
		MW:         d.MW,
		DurationS:  d.DurationS,
		DispatchID: d.ID.String(),
	}
}
