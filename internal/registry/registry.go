// Package registry maps live agent streams to assets and parks setpoints for
// assets that are offline.
package registry

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/bess/internal/sim"
	"github.com/voltgrid/bess/pb"
)

// MailboxCap bounds each connection's outbound queue. A full mailbox means the
// stream is stalled and the setpoint falls through to the pending path.
const MailboxCap = 32

// AgentStream is one registered connection's view for a single asset. The
// serving task owns the stream; the registry holds the outbound mailbox and
// peer metadata.
type AgentStream struct {
	Outbound    chan *pb.HeadendToAgent
	Peer        string
	AssetName   string
	SiteName    string
	SiteID      uuid.UUID
	ConnectedAt time.Time
}

// Connection is a snapshot row for the operator API.
type Connection struct {
	AssetID     uuid.UUID `json:"asset_id"`
	AssetName   string    `json:"asset_name"`
	SiteID      uuid.UUID `json:"site_id"`
	SiteName    string    `json:"site_name"`
	Peer        string    `json:"peer"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Registry guards the stream and pending maps. Lock order is streams before
// pending; both live under one mutex so the order cannot invert.
type Registry struct {
	mu      sync.RWMutex
	streams map[uuid.UUID]*AgentStream
	pending map[uuid.UUID]sim.Dispatch
	logger  *log.Logger
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		streams: make(map[uuid.UUID]*AgentStream),
		pending: make(map[uuid.UUID]sim.Dispatch),
		logger:  log.New(log.Writer(), "[registry] ", log.LstdFlags),
	}
}

// SetpointFrame builds the outbound frame for a dispatch.
func SetpointFrame(d *sim.Dispatch) *pb.HeadendToAgent {
	return &pb.HeadendToAgent{Setpoint: &pb.Setpoint{
		AssetID:    d.AssetID.String(),
		MW:         d.MW,
		DurationS:  d.DurationS,
		DispatchID: d.ID.String(),
	}}
}

// Register binds a stream to an asset, displacing any previous stream for the
// same id. A pending setpoint is drained onto the new mailbox; it stays parked
// if the mailbox refuses it. Returns the displaced stream, if any.
func (r *Registry) Register(assetID uuid.UUID, st *AgentStream) *AgentStream {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.streams[assetID]
	r.streams[assetID] = st
	if prev != nil {
		r.logger.Printf("register asset=%s peer=%s displaced previous peer=%s", assetID, st.Peer, prev.Peer)
	} else {
		r.logger.Printf("register asset=%s peer=%s", assetID, st.Peer)
	}

	if d, ok := r.pending[assetID]; ok {
		select {
		case st.Outbound <- SetpointFrame(&d):
			delete(r.pending, assetID)
			r.logger.Printf("drained pending setpoint asset=%s dispatch=%s mw=%.3f", assetID, d.ID, d.MW)
		default:
			r.logger.Printf("pending setpoint asset=%s kept: mailbox full at register", assetID)
		}
	}
	return prev
}

// Deregister removes the asset's stream entry and returns it for logging. The
// entry is only removed when it still belongs to the given stream, so a late
// disconnect of a displaced connection cannot tear down its replacement.
func (r *Registry) Deregister(assetID uuid.UUID, st *AgentStream) *AgentStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.streams[assetID]
	if !ok {
		return nil
	}
	if st != nil && cur != st {
		return nil
	}
	delete(r.streams, assetID)
	r.logger.Printf("deregister asset=%s peer=%s", assetID, cur.Peer)
	return cur
}

// SendOrPark delivers the dispatch to the asset's live stream, or parks it for
// the next Register. Parking replaces any previously parked dispatch, keeping
// at most one per asset. The returned error tells the caller which path was
// taken; a parked dispatch is not a failed one.
func (r *Registry) SendOrPark(d sim.Dispatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.streams[d.AssetID]
	if !ok {
		r.pending[d.AssetID] = d
		return fmt.Errorf("asset %s: %w", d.AssetID, sim.ErrAgentNotConnected)
	}
	select {
	case st.Outbound <- SetpointFrame(&d):
		return nil
	default:
		r.pending[d.AssetID] = d
		return fmt.Errorf("asset %s: %w", d.AssetID, sim.ErrMailboxFull)
	}
}

// Pending returns the parked dispatch for an asset, if any.
func (r *Registry) Pending(assetID uuid.UUID) (sim.Dispatch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.pending[assetID]
	return d, ok
}

// Connections snapshots the live streams for the operator API.
func (r *Registry) Connections() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0, len(r.streams))
	for id, st := range r.streams {
		out = append(out, Connection{
			AssetID:     id,
			AssetName:   st.AssetName,
			SiteID:      st.SiteID,
			SiteName:    st.SiteName,
			Peer:        st.Peer,
			ConnectedAt: st.ConnectedAt,
		})
	}
	return out
}

// ConnectedCount returns the number of live streams.
func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// PendingCount returns the number of parked setpoints.
func (r *Registry) PendingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// IsOnline reports whether the asset has a live stream.
func (r *Registry) IsOnline(assetID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.streams[assetID]
	return ok
}
