package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"

	"github.com/voltgrid/bess/internal/agentlink"
	"github.com/voltgrid/bess/internal/config"
	"github.com/voltgrid/bess/internal/sim"
	"github.com/voltgrid/bess/pb"
)

const (
	reconnectBackoff   = 2 * time.Second
	controllerFirmware = "sim-1.4.2"
)

var logger = log.New(log.Writer(), "[agent] ", log.LstdFlags)

// agent is one simulated battery behind a stream. The mutex guards the
// battery state against the tick loop and the setpoint receiver.
type agent struct {
	cfg   config.Agent
	asset sim.Asset

	mu       sync.Mutex
	state    sim.State
	lastTick time.Time
	expires  *time.Time // active setpoint deadline, nil when open-ended
	ticks    int64

	started  time.Time
	restored bool // bootstrap applies once per process, not per reconnect
}

func newAgent(cfg config.Agent) *agent {
	asset := sim.Asset{
		ID:               cfg.AssetID,
		SiteID:           cfg.SiteID,
		Name:             cfg.AssetName,
		SiteName:         cfg.SiteName,
		Location:         cfg.Location,
		CapacityMWhr:     cfg.CapacityMWhr,
		MaxMW:            cfg.MaxMW,
		MinMW:            cfg.MinMW,
		MinSocPct:        cfg.MinSocPct,
		MaxSocPct:        cfg.MaxSocPct,
		Efficiency:       cfg.Efficiency,
		RampRateMWPerMin: cfg.RampRateMWPerMin,
	}
	return &agent{
		cfg:   cfg,
		asset: asset,
		state: sim.State{
			SocMWhr: asset.CapacityMWhr * (asset.MinSocPct + asset.MaxSocPct) / 200,
		},
		lastTick: time.Now(),
		started:  time.Now(),
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg, err := config.LoadAgent()
	if err != nil {
		log.Fatalf("Bad agent configuration: %v", err)
	}

	a := newAgent(cfg)
	logger.Printf("asset=%s (%s) site=%s cap=%.1fMWh headend=%s",
		cfg.AssetName, cfg.AssetID, cfg.SiteName, cfg.CapacityMWhr, cfg.HeadendGRPC)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("shutdown signal received")
		cancel()
	}()

	for {
		if err := a.runSession(ctx); err != nil {
			logger.Printf("session ended: %v", err)
		}
		select {
		case <-ctx.Done():
			logger.Println("agent stopped")
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

// runSession dials the headend, restores state, registers and pumps telemetry
// until the stream breaks or the context is cancelled.
func (a *agent) runSession(ctx context.Context) error {
	conn, err := grpc.NewClient(a.cfg.HeadendGRPC,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.UseCompressor(gzip.Name)))
	if err != nil {
		return fmt.Errorf("dial %s: %w", a.cfg.HeadendGRPC, err)
	}
	defer conn.Close()
	client := pb.NewAgentLinkClient(conn)

	if !a.restored {
		a.bootstrap(ctx, client)
	}

	stream, err := client.Stream(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	var sendMu sync.Mutex
	send := func(msg *pb.AgentToHeadend) error {
		sendMu.Lock()
		defer sendMu.Unlock()
		return stream.Send(msg)
	}

	if err := send(&pb.AgentToHeadend{Register: &pb.Register{
		PrimaryAssetID: a.cfg.AssetID.String(),
		PrimarySiteID:  a.cfg.SiteID.String(),
		AssetName:      a.cfg.AssetName,
		SiteName:       a.cfg.SiteName,
	}}); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	logger.Println("registered with headend")

	sessionCtx, stop := context.WithCancel(ctx)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- a.receiveSetpoints(stream, send) }()
	go func() { errCh <- a.tickLoop(sessionCtx, send) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// bootstrap pulls authoritative state from the headend so a restarted agent
// resumes its previous SOC and any still-active setpoint.
func (a *agent) bootstrap(ctx context.Context, client pb.AgentLinkClient) {
	bctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	resp, err := client.Bootstrap(bctx, &pb.BootstrapRequest{
		AssetIDs: []string{a.cfg.AssetID.String()},
	})
	if err != nil {
		logger.Printf("bootstrap failed, starting from seed state: %v", err)
		return
	}
	a.restored = true
	for _, entry := range resp.Assets {
		if entry.AssetID != a.cfg.AssetID.String() {
			continue
		}
		a.mu.Lock()
		if tel := entry.Telemetry; tel != nil {
			a.state.SocMWhr = tel.SocMWhr
			a.state.CurrentMW = tel.CurrentMW
			logger.Printf("restored soc=%.3fMWh current=%.3fMW", tel.SocMWhr, tel.CurrentMW)
		}
		if sp := entry.Setpoint; sp != nil {
			a.state.SetpointMW = sp.MW
			if sp.DurationS != nil {
				deadline := time.Now().Add(time.Duration(*sp.DurationS) * time.Second)
				a.expires = &deadline
			}
			logger.Printf("restored setpoint=%.3fMW dispatch=%s", sp.MW, sp.DispatchID)
		}
		a.mu.Unlock()
	}
}

// receiveSetpoints applies inbound commands and acks each one.
func (a *agent) receiveSetpoints(stream pb.AgentLink_StreamClient, send func(*pb.AgentToHeadend) error) error {
	for {
		frame, err := stream.Recv()
		if err != nil {
			return fmt.Errorf("recv: %w", err)
		}
		sp := frame.Setpoint
		if sp == nil {
			continue
		}
		if sp.GroupID != "" {
			logger.Printf("setpoint group_id=%q ignored (groups not supported)", sp.GroupID)
		}

		// A matching asset id wins; otherwise a matching site id addresses
		// every local asset of that site, which here is just this one.
		switch {
		case sp.AssetID == a.cfg.AssetID.String():
		case sp.SiteID == a.cfg.SiteID.String():
		default:
			logger.Printf("setpoint for unknown target asset=%q site=%q dropped", sp.AssetID, sp.SiteID)
			continue
		}

		ack := pb.DispatchAck{
			DispatchID: sp.DispatchID,
			AssetID:    a.cfg.AssetID.String(),
			Timestamp:  time.Now().UTC(),
		}
		if err := a.applySetpoint(sp); err != nil {
			ack.Status = sim.AckRejected
			ack.Reason = err.Error()
			logger.Printf("setpoint %.3fMW rejected: %v", sp.MW, err)
		} else {
			ack.Status = sim.AckApplied
			logger.Printf("setpoint %.3fMW applied dispatch=%s", sp.MW, sp.DispatchID)
		}
		if err := send(&pb.AgentToHeadend{DispatchAck: &ack}); err != nil {
			return fmt.Errorf("send ack: %w", err)
		}
	}
}

func (a *agent) applySetpoint(sp *pb.Setpoint) error {
	if math.IsNaN(sp.MW) || math.IsInf(sp.MW, 0) {
		return fmt.Errorf("mw is not a finite number")
	}
	if sp.MW > a.asset.MaxMW || sp.MW < a.asset.MinMW {
		return fmt.Errorf("mw %.3f outside [%.3f, %.3f]", sp.MW, a.asset.MinMW, a.asset.MaxMW)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.SetpointMW = sp.MW
	a.expires = nil
	if sp.DurationS != nil {
		deadline := time.Now().Add(time.Duration(*sp.DurationS) * time.Second)
		a.expires = &deadline
	}
	return nil
}

// tickLoop advances the battery and streams telemetry and heartbeats.
func (a *agent) tickLoop(ctx context.Context, send func(*pb.AgentToHeadend) error) error {
	tick := time.NewTicker(time.Duration(a.cfg.TickIntervalS * float64(time.Second)))
	defer tick.Stop()
	heartbeat := time.NewTicker(time.Duration(a.cfg.HeartbeatIntervalS * float64(time.Second)))
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tick.C:
			tel := a.advance(now)
			if err := send(&pb.AgentToHeadend{Telemetry: tel}); err != nil {
				return fmt.Errorf("send telemetry: %w", err)
			}
		case now := <-heartbeat.C:
			hb := &pb.Heartbeat{AssetID: a.cfg.AssetID.String(), Timestamp: now.UTC()}
			if err := send(&pb.AgentToHeadend{Heartbeat: hb}); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}
		}
	}
}

// advance runs one physics step and renders the wire telemetry.
func (a *agent) advance(now time.Time) *pb.Telemetry {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.expires != nil && now.After(*a.expires) {
		logger.Printf("setpoint duration elapsed, returning to 0MW")
		a.state.SetpointMW = 0
		a.expires = nil
	}

	dt := now.Sub(a.lastTick).Seconds()
	a.lastTick = now
	if dt <= 0 {
		dt = a.cfg.TickIntervalS
	}

	a.ticks++
	tel := sim.Tick(&a.asset, &a.state, dt)
	tel.Timestamp = now.UTC()
	tel.Extras = map[string]sim.Value{
		"controller_fw": sim.StringValue(controllerFirmware),
		"uptime_s":      sim.Uint64Value(uint64(now.Sub(a.started).Seconds())),
		"tick_count":    sim.Int64Value(a.ticks),
	}
	wire := agentlink.TelemetryToWire(&tel)
	synthesizeDeviceFields(wire, &a.asset, &a.state)
	return wire
}

// synthesizeDeviceFields fills in plausible device-level readings derived
// from the electrical state. Nominal 480V bus.
func synthesizeDeviceFields(t *pb.Telemetry, asset *sim.Asset, state *sim.State) {
	const nominalV = 480.0
	t.VoltageV = nominalV
	t.CurrentA = state.CurrentMW * 1e6 / nominalV
	t.DCBusV = nominalV * 1.05
	t.DCBusA = t.CurrentA * 0.98
	t.TemperatureAmbientF = 77
	t.TemperatureCellF = 77 + 8*math.Abs(state.CurrentMW)/math.Max(asset.MaxMW, 1)
	t.TemperatureModuleF = t.TemperatureCellF - 2
	t.SohPct = 98.5
	t.AvailableChargeKW = math.Abs(asset.MinMW) * 1000
	t.AvailableDischargeKW = asset.MaxMW * 1000
}
