// Package journal persists the historical record: telemetry, dispatches,
// heartbeats, events and agent sessions. The control plane stays correct
// without it; every write here is best-effort for control decisions and
// authoritative for history.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/bess/internal/sim"
)

// Session is one agent connection interval for an asset.
type Session struct {
	AssetID        uuid.UUID  `json:"asset_id"`
	Peer           string     `json:"peer"`
	AssetName      string     `json:"asset_name"`
	SiteName       string     `json:"site_name"`
	ConnectedAt    time.Time  `json:"connected_at"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
}

// Journal is the narrow sink/query interface the control plane uses.
type Journal interface {
	UpsertAssets(ctx context.Context, assets []*sim.Asset) error

	AppendTelemetry(ctx context.Context, rows []sim.Telemetry) error
	AppendDispatch(ctx context.Context, d sim.Dispatch) error
	UpdateDispatchAck(ctx context.Context, dispatchID uuid.UUID, status string, ackedAt time.Time, reason string) error
	AppendHeartbeat(ctx context.Context, assetID uuid.UUID, ts time.Time) error
	AppendEvent(ctx context.Context, e sim.Event) error

	// AppendSessionOpen first closes any still-open session for the asset.
	AppendSessionOpen(ctx context.Context, s Session) error
	CloseOpenSession(ctx context.Context, assetID uuid.UUID, at time.Time) error

	LatestTelemetryByAssets(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]sim.Telemetry, error)
	LatestDispatchesByAssets(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]sim.Dispatch, error)
	LatestTelemetryAll(ctx context.Context) ([]sim.Telemetry, error)

	TelemetryHistory(ctx context.Context, assetID uuid.UUID, start, end *time.Time, limit int) ([]sim.Telemetry, error)
	DispatchHistory(ctx context.Context, limit int) ([]sim.Dispatch, error)
	EventHistory(ctx context.Context, assetID uuid.UUID, limit int) ([]sim.Event, error)
	LatestHeartbeat(ctx context.Context, assetID uuid.UUID) (time.Time, bool, error)
	HeartbeatHistory(ctx context.Context, assetID uuid.UUID, limit int) ([]time.Time, error)
	RecentSessions(ctx context.Context, perAsset int) ([]Session, error)

	Ping(ctx context.Context) error
	Close() error
}

// DefaultHistoryLimit bounds recent-rows queries when the caller does not say.
const DefaultHistoryLimit = 200
