// Package agentlink serves the agent side of the control plane: the
// bidirectional stream with its per-connection ingest loop, and the unary
// bootstrap used on reconnect.
package agentlink

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/peer"

	"github.com/voltgrid/bess/internal/headend"
	"github.com/voltgrid/bess/internal/journal"
	"github.com/voltgrid/bess/internal/registry"
	"github.com/voltgrid/bess/internal/sim"
	"github.com/voltgrid/bess/pb"
)

// Service implements pb.AgentLinkServer on top of the shared AppState.
type Service struct {
	state  *headend.AppState
	logger *log.Logger
}

// NewService wires the service.
func NewService(state *headend.AppState) *Service {
	return &Service{
		state:  state,
		logger: log.New(log.Writer(), "[agentlink] ", log.LstdFlags),
	}
}

// Stream runs one connection: a writer goroutine drains the shared mailbox,
// the receive loop applies inbound frames in arrival order. All assets
// registered on this connection share the mailbox.
func (s *Service) Stream(stream pb.AgentLink_StreamServer) error {
	ctx := stream.Context()
	peerAddr := "unknown"
	if p, ok := peer.FromContext(ctx); ok {
		peerAddr = p.Addr.String()
	}

	mailbox := make(chan *pb.HeadendToAgent, registry.MailboxCap)
	sendErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-mailbox:
				if err := stream.Send(frame); err != nil {
					sendErr <- err
					return
				}
			}
		}
	}()

	registered := make(map[uuid.UUID]*registry.AgentStream)
	defer s.teardown(registered, peerAddr)

	for {
		select {
		case err := <-sendErr:
			s.logger.Printf("send failed peer=%s: %v", peerAddr, err)
			return err
		default:
		}

		msg, err := stream.Recv()
		if err != nil {
			s.logger.Printf("recv ended peer=%s: %v", peerAddr, err)
			return nil
		}

		switch {
		case msg.Register != nil:
			s.handleRegister(stream, msg.Register, mailbox, peerAddr, registered)
		case msg.Telemetry != nil:
			tel, err := TelemetryFromWire(msg.Telemetry)
			if err != nil {
				s.logger.Printf("bad telemetry peer=%s: %v", peerAddr, err)
				continue
			}
			s.state.IngestTelemetry(ctx, tel)
		case msg.Heartbeat != nil:
			assetID, err := uuid.Parse(msg.Heartbeat.AssetID)
			if err != nil {
				s.logger.Printf("bad heartbeat asset_id=%q peer=%s", msg.Heartbeat.AssetID, peerAddr)
				continue
			}
			ts := msg.Heartbeat.Timestamp
			if ts.IsZero() {
				ts = time.Now().UTC()
			}
			s.state.RecordHeartbeat(ctx, assetID, ts)
		case msg.DispatchAck != nil:
			s.handleAck(stream, msg.DispatchAck, peerAddr)
		case msg.Event != nil:
			s.handleEvent(stream, msg.Event, peerAddr)
		default:
			s.logger.Printf("empty frame from peer=%s ignored", peerAddr)
		}
	}
}

// handleRegister binds every valid asset descriptor on the connection to the
// shared mailbox. Unknown assets still register; gateways may speak for
// assets the catalogue has not learned yet.
func (s *Service) handleRegister(stream pb.AgentLink_StreamServer, reg *pb.Register,
	mailbox chan *pb.HeadendToAgent, peerAddr string, registered map[uuid.UUID]*registry.AgentStream) {

	type entry struct {
		assetID   uuid.UUID
		siteID    uuid.UUID
		assetName string
		siteName  string
	}
	var entries []entry

	add := func(assetID, siteID, assetName, siteName string) {
		id, err := uuid.Parse(assetID)
		if err != nil {
			s.logger.Printf("register with bad asset_id=%q peer=%s skipped", assetID, peerAddr)
			return
		}
		sid, _ := uuid.Parse(siteID) // zero UUID when absent or invalid
		entries = append(entries, entry{assetID: id, siteID: sid, assetName: assetName, siteName: siteName})
	}

	if len(reg.Assets) > 0 {
		for _, a := range reg.Assets {
			add(a.AssetID, a.SiteID, a.AssetName, a.SiteName)
		}
	} else {
		// Legacy single-asset register.
		add(reg.PrimaryAssetID, reg.PrimarySiteID, reg.AssetName, reg.SiteName)
	}

	now := time.Now().UTC()
	for _, e := range entries {
		if _, known := s.state.Catalog.ByID(e.assetID); !known {
			s.logger.Printf("register for uncatalogued asset=%s peer=%s", e.assetID, peerAddr)
		}
		ast := &registry.AgentStream{
			Outbound:    mailbox,
			Peer:        peerAddr,
			AssetName:   e.assetName,
			SiteName:    e.siteName,
			SiteID:      e.siteID,
			ConnectedAt: now,
		}
		s.state.Streams.Register(e.assetID, ast)
		registered[e.assetID] = ast
		s.logger.Printf("agent connected asset=%s name=%q site=%q peer=%s", e.assetID, e.assetName, e.siteName, peerAddr)

		if s.state.Journal != nil {
			sess := journal.Session{
				AssetID:     e.assetID,
				Peer:        peerAddr,
				AssetName:   e.assetName,
				SiteName:    e.siteName,
				ConnectedAt: now,
			}
			if err := s.state.Journal.AppendSessionOpen(stream.Context(), sess); err != nil {
				s.state.Metrics.JournalErrors.WithLabelValues("session_open").Inc()
				s.logger.Printf("journal session open failed asset=%s: %v", e.assetID, err)
			}
		}
	}
	s.state.Metrics.AgentsConnected.Set(float64(s.state.Streams.ConnectedCount()))
	s.state.Metrics.PendingSetpoints.Set(float64(s.state.Streams.PendingCount()))
}

func (s *Service) handleAck(stream pb.AgentLink_StreamServer, ack *pb.DispatchAck, peerAddr string) {
	dispatchID, err := uuid.Parse(ack.DispatchID)
	if err != nil {
		s.logger.Printf("bad ack dispatch_id=%q peer=%s", ack.DispatchID, peerAddr)
		return
	}
	ts := ack.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	s.state.Metrics.DispatchAcks.WithLabelValues(ack.Status).Inc()
	s.logger.Printf("ack dispatch=%s asset=%s status=%s", dispatchID, ack.AssetID, ack.Status)
	if s.state.Journal != nil {
		if err := s.state.Journal.UpdateDispatchAck(stream.Context(), dispatchID, ack.Status, ts, ack.Reason); err != nil {
			s.state.Metrics.JournalErrors.WithLabelValues("dispatch_ack").Inc()
			s.logger.Printf("journal ack update failed dispatch=%s: %v", dispatchID, err)
		}
	}
}

func (s *Service) handleEvent(stream pb.AgentLink_StreamServer, ev *pb.Event, peerAddr string) {
	assetID, err := uuid.Parse(ev.AssetID)
	if err != nil {
		s.logger.Printf("bad event asset_id=%q peer=%s", ev.AssetID, peerAddr)
		return
	}
	siteID, _ := uuid.Parse(ev.SiteID)
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	s.state.RecordEvent(stream.Context(), sim.Event{
		ID:        uuid.New(),
		AssetID:   assetID,
		SiteID:    siteID,
		Timestamp: ts,
		EventType: ev.EventType,
		Severity:  ev.Severity,
		Message:   ev.Message,
	})
}

// teardown runs exactly once per connection: deregister every asset this
// connection registered and close its sessions. Owner-checked deregistration
// keeps a displaced connection's late cleanup from tearing down its
// replacement.
func (s *Service) teardown(registered map[uuid.UUID]*registry.AgentStream, peerAddr string) {
	// The stream context is already done here; journal cleanup gets its own
	// deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	for assetID, ast := range registered {
		if prev := s.state.Streams.Deregister(assetID, ast); prev != nil {
			s.logger.Printf("agent disconnected asset=%s peer=%s", assetID, peerAddr)
			if s.state.Journal != nil {
				if err := s.state.Journal.CloseOpenSession(ctx, assetID, now); err != nil {
					s.state.Metrics.JournalErrors.WithLabelValues("session_close").Inc()
					s.logger.Printf("journal session close failed asset=%s: %v", assetID, err)
				}
			}
		}
	}
	s.state.Metrics.AgentsConnected.Set(float64(s.state.Streams.ConnectedCount()))
}
