package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/bess/internal/sim"
)

// Memory is an in-process journal for tests and journal-optional deployments.
// Same contract as Postgres, no durability.
type Memory struct {
	mu         sync.RWMutex
	assets     map[uuid.UUID]sim.Asset
	telemetry  []sim.Telemetry
	dispatches []sim.Dispatch
	heartbeats map[uuid.UUID][]time.Time
	events     []sim.Event
	sessions   []Session
}

// NewMemory returns an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{
		assets:     make(map[uuid.UUID]sim.Asset),
		heartbeats: make(map[uuid.UUID][]time.Time),
	}
}

func (m *Memory) UpsertAssets(_ context.Context, assets []*sim.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range assets {
		m.assets[a.ID] = *a
	}
	return nil
}

func (m *Memory) AppendTelemetry(_ context.Context, rows []sim.Telemetry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.telemetry = append(m.telemetry, rows...)
	return nil
}

func (m *Memory) AppendDispatch(_ context.Context, d sim.Dispatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches = append(m.dispatches, d)
	return nil
}

func (m *Memory) UpdateDispatchAck(_ context.Context, dispatchID uuid.UUID, status string, ackedAt time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.dispatches {
		if m.dispatches[i].ID == dispatchID {
			at := ackedAt
			m.dispatches[i].AckStatus = status
			m.dispatches[i].AckedAt = &at
			m.dispatches[i].AckReason = reason
			return nil
		}
	}
	return sim.ErrNotFound
}

func (m *Memory) AppendHeartbeat(_ context.Context, assetID uuid.UUID, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats[assetID] = append(m.heartbeats[assetID], ts)
	return nil
}

func (m *Memory) AppendEvent(_ context.Context, e sim.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) AppendSessionOpen(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeOpenLocked(s.AssetID, s.ConnectedAt)
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *Memory) CloseOpenSession(_ context.Context, assetID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeOpenLocked(assetID, at)
	return nil
}

func (m *Memory) closeOpenLocked(assetID uuid.UUID, at time.Time) {
	for i := range m.sessions {
		if m.sessions[i].AssetID == assetID && m.sessions[i].DisconnectedAt == nil {
			t := at
			m.sessions[i].DisconnectedAt = &t
		}
	}
}

func (m *Memory) LatestTelemetryByAssets(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]sim.Telemetry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[uuid.UUID]sim.Telemetry)
	for _, t := range m.telemetry {
		if !want[t.AssetID] {
			continue
		}
		if prev, ok := out[t.AssetID]; !ok || t.Timestamp.After(prev.Timestamp) {
			out[t.AssetID] = t
		}
	}
	return out, nil
}

func (m *Memory) LatestTelemetryAll(ctx context.Context) ([]sim.Telemetry, error) {
	m.mu.RLock()
	latest := make(map[uuid.UUID]sim.Telemetry)
	for _, t := range m.telemetry {
		if prev, ok := latest[t.AssetID]; !ok || t.Timestamp.After(prev.Timestamp) {
			latest[t.AssetID] = t
		}
	}
	m.mu.RUnlock()

	out := make([]sim.Telemetry, 0, len(latest))
	for _, t := range latest {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AssetID.String() < out[j].AssetID.String()
	})
	return out, nil
}

func (m *Memory) TelemetryHistory(_ context.Context, assetID uuid.UUID, start, end *time.Time, limit int) ([]sim.Telemetry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []sim.Telemetry
	for _, t := range m.telemetry {
		if t.AssetID != assetID {
			continue
		}
		if start != nil && t.Timestamp.Before(*start) {
			continue
		}
		if end != nil && t.Timestamp.After(*end) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) LatestDispatchesByAssets(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]sim.Dispatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[uuid.UUID]sim.Dispatch)
	for _, d := range m.dispatches {
		if !want[d.AssetID] || d.Status != sim.DispatchAccepted {
			continue
		}
		if prev, ok := out[d.AssetID]; !ok || d.SubmittedAt.After(prev.SubmittedAt) {
			out[d.AssetID] = d
		}
	}
	return out, nil
}

func (m *Memory) DispatchHistory(_ context.Context, limit int) ([]sim.Dispatch, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]sim.Dispatch, len(m.dispatches))
	copy(out, m.dispatches)
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) EventHistory(_ context.Context, assetID uuid.UUID, limit int) ([]sim.Event, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []sim.Event
	for _, e := range m.events {
		if e.AssetID == assetID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) LatestHeartbeat(_ context.Context, assetID uuid.UUID) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hb := m.heartbeats[assetID]
	if len(hb) == 0 {
		return time.Time{}, false, nil
	}
	latest := hb[0]
	for _, ts := range hb[1:] {
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest, true, nil
}

func (m *Memory) HeartbeatHistory(_ context.Context, assetID uuid.UUID, limit int) ([]time.Time, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	hb := m.heartbeats[assetID]
	out := make([]time.Time, len(hb))
	copy(out, hb)
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) RecentSessions(_ context.Context, perAsset int) ([]Session, error) {
	if perAsset <= 0 {
		perAsset = 5
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	byAsset := make(map[uuid.UUID][]Session)
	for _, s := range m.sessions {
		byAsset[s.AssetID] = append(byAsset[s.AssetID], s)
	}
	var out []Session
	for _, list := range byAsset {
		sort.Slice(list, func(i, j int) bool { return list[i].ConnectedAt.After(list[j].ConnectedAt) })
		if len(list) > perAsset {
			list = list[:perAsset]
		}
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.After(out[j].ConnectedAt) })
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }
