package agentlink

import (
	"context"

	"github.com/google/uuid"

	"github.com/voltgrid/bess/internal/sim"
	"github.com/voltgrid/bess/pb"
)

// Bootstrap answers a reconnecting agent with authoritative state per asset.
// Every requested id gets an entry; the telemetry falls back through the
// in-memory cache, the journal and finally a zero-advance synthetic tick.
func (s *Service) Bootstrap(ctx context.Context, req *pb.BootstrapRequest) (*pb.BootstrapResponse, error) {
	s.state.Metrics.BootstrapRequests.Inc()

	resp := &pb.BootstrapResponse{Assets: make([]pb.AssetBootstrap, 0, len(req.AssetIDs))}

	var ids []uuid.UUID
	for _, raw := range req.AssetIDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}

	// One journal round-trip for the whole request; per-asset fallbacks read
	// from these maps.
	var jnlTelemetry map[uuid.UUID]sim.Telemetry
	var jnlDispatches map[uuid.UUID]sim.Dispatch
	if s.state.Journal != nil && len(ids) > 0 {
		var err error
		jnlTelemetry, err = s.state.Journal.LatestTelemetryByAssets(ctx, ids)
		if err != nil {
			s.state.Metrics.JournalErrors.WithLabelValues("latest_telemetry").Inc()
			s.logger.Printf("bootstrap telemetry query failed: %v", err)
		}
		jnlDispatches, err = s.state.Journal.LatestDispatchesByAssets(ctx, ids)
		if err != nil {
			s.state.Metrics.JournalErrors.WithLabelValues("latest_dispatches").Inc()
			s.logger.Printf("bootstrap dispatch query failed: %v", err)
		}
	}

	for _, raw := range req.AssetIDs {
		entry := pb.AssetBootstrap{AssetID: raw}
		id, err := uuid.Parse(raw)
		if err != nil {
			s.logger.Printf("bootstrap skipping unparseable asset_id=%q", raw)
			resp.Assets = append(resp.Assets, entry)
			continue
		}

		if tel, ok := s.state.Latest(id); ok {
			entry.Telemetry = TelemetryToWire(&tel)
		} else if tel, ok := jnlTelemetry[id]; ok {
			entry.Telemetry = TelemetryToWire(&tel)
		} else if tel, ok := s.state.Sim.SyntheticTick(id); ok {
			entry.Telemetry = TelemetryToWire(&tel)
		}

		if d, ok := s.state.Sim.LastOperatorDispatch(id); ok {
			entry.Setpoint = SetpointFromDispatch(&d)
		} else if d, ok := jnlDispatches[id]; ok {
			entry.Setpoint = SetpointFromDispatch(&d)
		} else if st, ok := s.state.Sim.StateOf(id); ok && st.SetpointMW != 0 {
			// Live state carries a setpoint with no recorded dispatch; hand
			// it back without an id.
			entry.Setpoint = &pb.Setpoint{AssetID: raw, MW: st.SetpointMW}
		}

		resp.Assets = append(resp.Assets, entry)
	}
	return resp, nil
}
