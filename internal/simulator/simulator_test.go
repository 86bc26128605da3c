package simulator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/bess/internal/catalog"
	"github.com/voltgrid/bess/internal/sim"
)

var (
	assetA = uuid.MustParse("0a61d0a2-98f5-4f0e-86a3-111111111111")
	siteID = uuid.MustParse("4f5a9f96-5f4e-4f60-9d8a-27e2f3a0b111")
)

func testRegistry(t *testing.T) *catalog.Registry {
	t.Helper()
	doc := `
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
    min_soc_pct: 10
    max_soc_pct: 90
    efficiency: 0.95
    ramp_rate_mw_per_min: 30
`
	path := filepath.Join(t.TempDir(), "assets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	reg, err := catalog.Load(path)
	require.NoError(t, err)
	return reg
}

func TestNewSeedsMidBand(t *testing.T) {
	s := New(testRegistry(t))

	st, ok := s.StateOf(assetA)
	require.True(t, ok)
	// Midpoint of [10%, 90%] of 100 MWh.
	assert.InDelta(t, 50.0, st.SocMWhr, 1e-9)
	assert.Zero(t, st.CurrentMW)
	assert.Zero(t, st.SetpointMW)

	d, ok := s.LastDispatch(assetA)
	require.True(t, ok)
	assert.Equal(t, sim.DispatchAccepted, d.Status)
	assert.Zero(t, d.MW)
}

func TestSetDispatchGates(t *testing.T) {
	s := New(testRegistry(t))

	d, err := s.SetDispatch(assetA, 25, nil, false, nil)
	require.NoError(t, err)
	assert.Equal(t, sim.DispatchAccepted, d.Status)
	assert.Equal(t, 25.0, d.MW)

	st, _ := s.StateOf(assetA)
	assert.Equal(t, 25.0, st.SetpointMW)

	_, err = s.SetDispatch(assetA, 41, nil, false, nil)
	require.ErrorIs(t, err, sim.ErrOutOfBounds)

	_, err = s.SetDispatch(assetA, -41, nil, false, nil)
	require.ErrorIs(t, err, sim.ErrOutOfBounds)

	_, err = s.SetDispatch(uuid.New(), 5, nil, false, nil)
	require.ErrorIs(t, err, sim.ErrNotFound)
}

func TestSocGate(t *testing.T) {
	s := New(testRegistry(t))

	// At the band floor (10 MWh) discharging is refused but charging works.
	floor := 10.0
	_, err := s.SetDispatch(assetA, 5, nil, false, &floor)
	require.ErrorIs(t, err, sim.ErrAtMinSoc)
	_, err = s.SetDispatch(assetA, -5, nil, false, &floor)
	require.NoError(t, err)

	ceil := 90.0
	_, err = s.SetDispatch(assetA, -5, nil, false, &ceil)
	require.ErrorIs(t, err, sim.ErrAtMaxSoc)
	_, err = s.SetDispatch(assetA, 5, nil, false, &ceil)
	require.NoError(t, err)

	// A rejected dispatch leaves the last accepted one in place.
	d, ok := s.LastDispatch(assetA)
	require.True(t, ok)
	assert.Equal(t, 5.0, d.MW)
}

func TestHydrateReclamps(t *testing.T) {
	s := New(testRegistry(t))

	s.Hydrate([]sim.Telemetry{{
		AssetID:    assetA,
		SocMWhr:    99, // above the 90 MWh band ceiling
		CurrentMW:  55, // above max_mw
		SetpointMW: 12,
	}})
	st, _ := s.StateOf(assetA)
	assert.InDelta(t, 90.0, st.SocMWhr, 1e-9)
	assert.InDelta(t, 40.0, st.CurrentMW, 1e-9)
	assert.InDelta(t, 12.0, st.SetpointMW, 1e-9)

	// Rows for unknown assets are ignored.
	s.Hydrate([]sim.Telemetry{{AssetID: uuid.New(), SocMWhr: 1}})
}

func TestSyntheticTick(t *testing.T) {
	s := New(testRegistry(t))

	tel, ok := s.SyntheticTick(assetA)
	require.True(t, ok)
	assert.Equal(t, assetA, tel.AssetID)
	assert.Equal(t, siteID, tel.SiteID)
	assert.InDelta(t, 50.0, tel.SocMWhr, 1e-9)
	assert.Equal(t, sim.StatusIdle, tel.Status)

	// Zero-advance: the stored state is untouched.
	st, _ := s.StateOf(assetA)
	assert.InDelta(t, 50.0, st.SocMWhr, 1e-9)

	_, ok = s.SyntheticTick(uuid.New())
	assert.False(t, ok)
}
