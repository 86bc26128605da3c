package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/bess/internal/catalog"
	"github.com/voltgrid/bess/internal/dispatch"
	"github.com/voltgrid/bess/internal/headend"
	"github.com/voltgrid/bess/internal/journal"
	"github.com/voltgrid/bess/internal/metrics"
	"github.com/voltgrid/bess/internal/registry"
	"github.com/voltgrid/bess/internal/sim"
	"github.com/voltgrid/bess/pb"
)

var (
	assetA = uuid.MustParse("0a61d0a2-98f5-4f0e-86a3-111111111111")
	assetB = uuid.MustParse("0a61d0a2-98f5-4f0e-86a3-222222222222")
	siteID = uuid.MustParse("4f5a9f96-5f4e-4f60-9d8a-27e2f3a0b111")
)

const apiDoc = `
sites:
  - id: 4f5a9f96-5f4e-4f60-9d8a-27e2f3a0b111
    name: yard
    location: Amarillo, TX
assets:
  - id: 0a61d0a2-98f5-4f0e-86a3-111111111111
    site_id: 4f5a9f96-5f4e-4f60-9d8a-27e2f3a0b111
    name: bess-a
    capacity_mwhr: 100
    max_mw: 40
    min_mw: -40
    efficiency: 1.0
    ramp_rate_mw_per_min: 30
  - id: 0a61d0a2-98f5-4f0e-86a3-222222222222
    site_id: 4f5a9f96-5f4e-4f60-9d8a-27e2f3a0b111
    name: bess-b
    capacity_mwhr: 300
    max_mw: 20
    min_mw: -20
    efficiency: 1.0
    ramp_rate_mw_per_min: 30
`

type apiFixture struct {
	state  *headend.AppState
	jnl    *journal.Memory
	server *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(apiDoc), 0o644))
	cat, err := catalog.Load(path)
	require.NoError(t, err)

	jnl := journal.NewMemory()
	met := metrics.New(prometheus.NewRegistry())
	state := headend.New(cat, jnl, met)
	engine := dispatch.NewEngine(cat, state.Sim, state.Streams, jnl, state, met)

	srv := httptest.NewServer(NewRouter(state, engine))
	t.Cleanup(srv.Close)
	return &apiFixture{state: state, jnl: jnl, server: srv}
}

func (f *apiFixture) get(t *testing.T, path string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (f *apiFixture) post(t *testing.T, path string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (f *apiFixture) connect(assetID uuid.UUID) {
	f.state.Streams.Register(assetID, &registry.AgentStream{
		Outbound:    make(chan *pb.HeadendToAgent, registry.MailboxCap),
		Peer:        "test-agent",
		AssetName:   "bess-a",
		SiteName:    "yard",
		SiteID:      siteID,
		ConnectedAt: time.Now().UTC(),
	})
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	var body map[string]interface{}
	resp := f.get(t, "/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["journal"])
	assert.Equal(t, 2.0, body["assets"])
}

func TestListAssetsSyntheticOverlay(t *testing.T) {
	f := newAPIFixture(t)
	var views []AssetView
	resp := f.get(t, "/assets", &views)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, views, 2)

	// Nothing observed yet: live fields come from the zero-advance tick.
	v := views[0]
	assert.Equal(t, "bess-a", v.Name)
	assert.False(t, v.Online)
	require.NotNil(t, v.SocMWhr)
	assert.InDelta(t, 50.0, *v.SocMWhr, 1e-9)
	assert.Nil(t, v.LastSeen)
}

func TestGetAssetWithLiveTelemetry(t *testing.T) {
	f := newAPIFixture(t)
	f.connect(assetA)
	f.state.IngestTelemetry(context.Background(), sim.Telemetry{
		AssetID: assetA, SiteID: siteID, SiteName: "yard",
		Timestamp: time.Now().UTC(), SocMWhr: 61, Status: sim.StatusIdle,
	})

	var v AssetView
	resp := f.get(t, "/assets/"+assetA.String(), &v)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, v.Online)
	require.NotNil(t, v.SocMWhr)
	assert.InDelta(t, 61.0, *v.SocMWhr, 1e-9)
	assert.NotNil(t, v.LastSeen)

	resp = f.get(t, "/assets/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.get(t, "/assets/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListSitesAggregates(t *testing.T) {
	f := newAPIFixture(t)
	f.connect(assetA)
	f.state.IngestTelemetry(context.Background(), sim.Telemetry{
		AssetID: assetA, SiteID: siteID, SiteName: "yard",
		Timestamp: time.Now().UTC(), SocMWhr: 60, CurrentMW: 5,
	})

	var sites []SiteView
	resp := f.get(t, "/sites", &sites)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, sites, 1)

	s := sites[0]
	assert.Equal(t, "yard", s.Name)
	assert.Equal(t, 2, s.AssetCount)
	assert.Equal(t, 1, s.OnlineCount)
	assert.InDelta(t, 400.0, s.CapacityMWhr, 1e-9)
	assert.InDelta(t, 60.0, s.MaxMW, 1e-9)
	require.NotNil(t, s.SocMWhr)
	assert.InDelta(t, 60.0, *s.SocMWhr, 1e-9)
	require.NotNil(t, s.CurrentMW)
	assert.InDelta(t, 5.0, *s.CurrentMW, 1e-9)
}

func TestDispatchAssetFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.connect(assetA)

	var d sim.Dispatch
	resp := f.post(t, "/dispatch", map[string]interface{}{"asset_id": assetA, "mw": 5}, &d)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sim.DispatchAccepted, d.Status)
	assert.Equal(t, 5.0, d.MW)

	var hist []sim.Dispatch
	resp = f.get(t, "/dispatch/history", &hist)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, hist, 1)
	assert.Equal(t, d.ID, hist[0].ID)
}

func TestDispatchSiteFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.connect(assetA)
	f.connect(assetB)

	var res dispatch.SiteResult
	resp := f.post(t, "/dispatch", map[string]interface{}{"site_id": siteID, "mw": 35}, &res)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, res.Allocations, 2)
	require.Len(t, res.Dispatches, 2)

	total := 0.0
	for _, a := range res.Allocations {
		total += a.MW
	}
	assert.InDelta(t, 35.0, total, 1e-6)
}

func TestDispatchValidationErrors(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/dispatch", map[string]interface{}{"mw": 5}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, "/dispatch", map[string]interface{}{"asset_id": assetA, "mw": 99}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, "/dispatch", map[string]interface{}{"asset_id": uuid.New(), "mw": 5}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.post(t, "/dispatch", map[string]interface{}{"site_id": siteID, "mw": 5}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "no online assets")
}

func TestPostTelemetryIngress(t *testing.T) {
	f := newAPIFixture(t)

	tel := sim.Telemetry{
		AssetID: assetA, SiteID: siteID, SiteName: "yard",
		Timestamp: time.Now().UTC(), SocMWhr: 47,
		Extras: map[string]sim.Value{
			"inverter_temp_f": sim.Float64Value(104.2),
			"fault":           sim.BoolValue(false),
		},
	}
	resp := f.post(t, "/telemetry", tel, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var got sim.Telemetry
	resp = f.get(t, "/telemetry/"+assetA.String(), &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 47.0, got.SocMWhr, 1e-9)
	require.Contains(t, got.Extras, "inverter_temp_f")
	assert.InDelta(t, 104.2, *got.Extras["inverter_temp_f"].F64, 1e-9)

	// Unknown asset rejected.
	tel.AssetID = uuid.New()
	resp = f.post(t, "/telemetry", tel, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTelemetryHistoryRange(t *testing.T) {
	f := newAPIFixture(t)
	base := time.Now().UTC()
	require.NoError(t, f.jnl.AppendTelemetry(context.Background(), []sim.Telemetry{
		{AssetID: assetA, SiteID: siteID, Timestamp: base.Add(-2 * time.Hour), SocMWhr: 40},
		{AssetID: assetA, SiteID: siteID, Timestamp: base, SocMWhr: 42},
	}))

	var rows []sim.Telemetry
	start := base.Add(-time.Hour).Format(time.RFC3339)
	resp := f.get(t, "/telemetry/"+assetA.String()+"/history?start="+start, &rows)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, rows, 1)
	assert.InDelta(t, 42.0, rows[0].SocMWhr, 1e-9)

	resp = f.get(t, "/telemetry/"+assetA.String()+"/history?start=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventsRoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	var e sim.Event
	resp := f.post(t, "/events", map[string]interface{}{
		"asset_id":   assetA,
		"event_type": "OPERATOR_NOTE",
		"message":    "inspection scheduled",
	}, &e)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sim.SeverityInfo, e.Severity)
	assert.Equal(t, siteID, e.SiteID)

	var rows []sim.Event
	resp = f.get(t, "/events/"+assetA.String()+"/history", &rows)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, rows, 1)
	assert.Equal(t, "OPERATOR_NOTE", rows[0].EventType)
}

func TestHeartbeatEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/heartbeat/"+assetA.String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ts := time.Now().UTC()
	require.NoError(t, f.jnl.AppendHeartbeat(context.Background(), assetA, ts))

	var body map[string]interface{}
	resp = f.get(t, "/heartbeat/"+assetA.String(), &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, assetA.String(), body["asset_id"])

	var rows []time.Time
	resp = f.get(t, "/heartbeat/"+assetA.String()+"/history", &rows)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, rows, 1)
}

func TestListAgentsMergesSessions(t *testing.T) {
	f := newAPIFixture(t)
	f.connect(assetA)

	// An open journal session for the live asset is suppressed; a closed one
	// and another asset's history survive.
	now := time.Now().UTC()
	require.NoError(t, f.jnl.AppendSessionOpen(context.Background(), journal.Session{
		AssetID: assetB, Peer: "old", ConnectedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, f.jnl.CloseOpenSession(context.Background(), assetB, now.Add(-30*time.Minute)))
	require.NoError(t, f.jnl.AppendSessionOpen(context.Background(), journal.Session{
		AssetID: assetA, Peer: "test-agent", ConnectedAt: now,
	}))

	var resp AgentsResponse
	httpResp := f.get(t, "/agents", &resp)
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Len(t, resp.Connected, 1)
	assert.Equal(t, assetA, resp.Connected[0].AssetID)
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, assetB, resp.Sessions[0].AssetID)
}

func TestJournalLessModeDegradesGracefully(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(apiDoc), 0o644))
	cat, err := catalog.Load(path)
	require.NoError(t, err)

	met := metrics.New(prometheus.NewRegistry())
	state := headend.New(cat, nil, met)
	engine := dispatch.NewEngine(cat, state.Sim, state.Streams, nil, state, met)
	srv := httptest.NewServer(NewRouter(state, engine))
	defer srv.Close()

	// Health reports the journal absent but stays 200.
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "absent", body["journal"])

	// History endpoints return 503.
	resp2, err := http.Get(srv.URL + "/dispatch/history")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)

	// Dispatch still works without a journal.
	state.Streams.Register(assetA, &registry.AgentStream{
		Outbound: make(chan *pb.HeadendToAgent, registry.MailboxCap), Peer: "p",
	})
	raw, _ := json.Marshal(map[string]interface{}{"asset_id": assetA, "mw": 5})
	resp3, err := http.Post(srv.URL+"/dispatch", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.get(t, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPendingDispatchVisibleAfterOfflineSubmit(t *testing.T) {
	f := newAPIFixture(t)

	var d sim.Dispatch
	resp := f.post(t, "/dispatch", map[string]interface{}{"asset_id": assetA, "mw": 5}, &d)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "offline submit still records the dispatch")

	pending, ok := f.state.Streams.Pending(assetA)
	require.True(t, ok)
	assert.Equal(t, d.ID, pending.ID)
}
