package agentlink

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/voltgrid/bess/internal/catalog"
	"github.com/voltgrid/bess/internal/headend"
	"github.com/voltgrid/bess/internal/journal"
	"github.com/voltgrid/bess/internal/metrics"
	"github.com/voltgrid/bess/internal/sim"
	"github.com/voltgrid/bess/pb"
)

var (
	assetA = uuid.MustParse("0a61d0a2-98f5-4f0e-86a3-111111111111")
	siteID = uuid.MustParse("4f5a9f96-5f4e-4f60-9d8a-27e2f3a0b111")
)

const linkDoc = `
sites:
  - id: 4f5a9f96-5f4e-4f60-9d8a-27e2f3a0b111
    name: yard
assets:
  - id: 0a61d0a2-98f5-4f0e-86a3-111111111111
    site_id: 4f5a9f96-5f4e-4f60-9d8a-27e2f3a0b111
    name: bess-a
    capacity_mwhr: 100
    max_mw: 40
    min_mw: -40
    efficiency: 1.0
    ramp_rate_mw_per_min: 30
`

func newState(t *testing.T, jnl journal.Journal) *headend.AppState {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(linkDoc), 0o644))
	cat, err := catalog.Load(path)
	require.NoError(t, err)
	return headend.New(cat, jnl, metrics.New(prometheus.NewRegistry()))
}

// fakeStream drives Service.Stream from a test: inbound frames come from a
// channel, outbound frames are collected.
type fakeStream struct {
	grpc.ServerStream
	ctx      context.Context
	inbound  chan *pb.AgentToHeadend
	outbound chan *pb.HeadendToAgent
}

func newFakeStream(ctx context.Context) *fakeStream {
	return &fakeStream{
		ctx:      ctx,
		inbound:  make(chan *pb.AgentToHeadend, 16),
		outbound: make(chan *pb.HeadendToAgent, 16),
	}
}

func (f *fakeStream) Context() context.Context     { return f.ctx }
func (f *fakeStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeStream) SetTrailer(metadata.MD)       {}

func (f *fakeStream) Send(m *pb.HeadendToAgent) error {
	f.outbound <- m
	return nil
}

func (f *fakeStream) Recv() (*pb.AgentToHeadend, error) {
	m, ok := <-f.inbound
	if !ok {
		return nil, io.EOF
	}
	return m, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStreamRegisterIngestDisconnect(t *testing.T) {
	jnl := journal.NewMemory()
	state := newState(t, jnl)
	svc := NewService(state)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fs := newFakeStream(ctx)

	done := make(chan error, 1)
	go func() { done <- svc.Stream(fs) }()

	fs.inbound <- &pb.AgentToHeadend{Register: &pb.Register{
		PrimaryAssetID: assetA.String(),
		PrimarySiteID:  siteID.String(),
		AssetName:      "bess-a",
		SiteName:       "yard",
	}}
	waitFor(t, func() bool { return state.Streams.IsOnline(assetA) })

	// Session opened in the journal.
	sessions, err := jnl.RecentSessions(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Nil(t, sessions[0].DisconnectedAt)

	fs.inbound <- &pb.AgentToHeadend{Telemetry: &pb.Telemetry{
		AssetID:   assetA.String(),
		SiteID:    siteID.String(),
		SiteName:  "yard",
		Timestamp: time.Now().UTC(),
		SocMWhr:   42,
		Status:    sim.StatusIdle,
	}}
	waitFor(t, func() bool {
		tel, ok := state.Latest(assetA)
		return ok && tel.SocMWhr == 42
	})

	fs.inbound <- &pb.AgentToHeadend{Heartbeat: &pb.Heartbeat{
		AssetID:   assetA.String(),
		Timestamp: time.Now().UTC(),
	}}
	waitFor(t, func() bool {
		_, ok, err := jnl.LatestHeartbeat(context.Background(), assetA)
		return err == nil && ok
	})

	// EOF: the connection tears down and the session closes.
	close(fs.inbound)
	require.NoError(t, <-done)
	assert.False(t, state.Streams.IsOnline(assetA))
	sessions, err = jnl.RecentSessions(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.NotNil(t, sessions[0].DisconnectedAt)
}

func TestStreamRegisterDrainsPending(t *testing.T) {
	jnl := journal.NewMemory()
	state := newState(t, jnl)
	svc := NewService(state)

	// Park a dispatch while the agent is away.
	d := sim.Dispatch{
		ID: uuid.New(), AssetID: assetA, MW: 5,
		Status: sim.DispatchAccepted, SubmittedAt: time.Now().UTC(),
	}
	require.ErrorIs(t, state.Streams.SendOrPark(d), sim.ErrAgentNotConnected)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fs := newFakeStream(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Stream(fs) }()

	fs.inbound <- &pb.AgentToHeadend{Register: &pb.Register{
		PrimaryAssetID: assetA.String(),
		PrimarySiteID:  siteID.String(),
	}}

	// First outbound frame is the parked setpoint.
	select {
	case frame := <-fs.outbound:
		require.NotNil(t, frame.Setpoint)
		assert.Equal(t, 5.0, frame.Setpoint.MW)
		assert.Equal(t, d.ID.String(), frame.Setpoint.DispatchID)
	case <-time.After(2 * time.Second):
		t.Fatal("no setpoint delivered on register")
	}
	_, ok := state.Streams.Pending(assetA)
	assert.False(t, ok)

	close(fs.inbound)
	require.NoError(t, <-done)
}

func TestStreamDispatchAck(t *testing.T) {
	jnl := journal.NewMemory()
	state := newState(t, jnl)
	svc := NewService(state)

	d := sim.Dispatch{
		ID: uuid.New(), AssetID: assetA, MW: 5,
		Status: sim.DispatchAccepted, SubmittedAt: time.Now().UTC(),
	}
	require.NoError(t, jnl.AppendDispatch(context.Background(), d))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fs := newFakeStream(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Stream(fs) }()

	fs.inbound <- &pb.AgentToHeadend{DispatchAck: &pb.DispatchAck{
		DispatchID: d.ID.String(),
		AssetID:    assetA.String(),
		Status:     sim.AckApplied,
		Timestamp:  time.Now().UTC(),
	}}
	waitFor(t, func() bool {
		hist, err := jnl.DispatchHistory(context.Background(), 5)
		return err == nil && len(hist) == 1 && hist[0].AckStatus == sim.AckApplied
	})

	close(fs.inbound)
	require.NoError(t, <-done)
}

func TestStreamGatewayRegistersAllAssets(t *testing.T) {
	state := newState(t, nil)
	svc := NewService(state)

	other := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fs := newFakeStream(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Stream(fs) }()

	fs.inbound <- &pb.AgentToHeadend{Register: &pb.Register{
		GatewayID: "gw-1",
		Assets: []pb.AssetDescriptor{
			{AssetID: assetA.String(), SiteID: siteID.String(), AssetName: "bess-a", SiteName: "yard"},
			{AssetID: other.String(), SiteID: siteID.String(), AssetName: "bess-x", SiteName: "yard"},
			{AssetID: "not-a-uuid"},
		},
	}}
	waitFor(t, func() bool { return state.Streams.ConnectedCount() == 2 })
	assert.True(t, state.Streams.IsOnline(assetA))
	assert.True(t, state.Streams.IsOnline(other))

	close(fs.inbound)
	require.NoError(t, <-done)
	assert.Zero(t, state.Streams.ConnectedCount())
}
