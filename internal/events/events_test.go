package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/bess/internal/sim"
)

func bandedAsset() *sim.Asset {
	return &sim.Asset{
		ID:           uuid.New(),
		SiteID:       uuid.New(),
		CapacityMWhr: 100,
		MinSocPct:    10,
		MaxSocPct:    90,
	}
}

func TestZoneOf(t *testing.T) {
	a := bandedAsset()
	assert.Equal(t, ZoneBelowMin, ZoneOf(a, 10.0))
	assert.Equal(t, ZoneBelowMin, ZoneOf(a, 5.0))
	assert.Equal(t, ZoneInRange, ZoneOf(a, 50.0))
	assert.Equal(t, ZoneAboveMax, ZoneOf(a, 90.0))
	assert.Equal(t, ZoneAboveMax, ZoneOf(a, 95.0))
}

func TestDetectorEdgeOnly(t *testing.T) {
	d := NewDetector()
	a := bandedAsset()

	obs := func(soc float64) *sim.Event {
		return d.Observe(a, &sim.Telemetry{AssetID: a.ID, SocMWhr: soc})
	}

	// In range first: nothing.
	assert.Nil(t, obs(50))

	// Entering the floor zone emits exactly once.
	e := obs(9.5)
	require.NotNil(t, e)
	assert.Equal(t, EventMinSocReached, e.EventType)
	assert.Equal(t, sim.SeverityWarning, e.Severity)
	assert.Equal(t, a.ID, e.AssetID)
	assert.Equal(t, a.SiteID, e.SiteID)

	// Still at the floor: silent.
	assert.Nil(t, obs(9.0))
	assert.Nil(t, obs(10.0))

	// Recovering to range: no clear event.
	assert.Nil(t, obs(50))

	// Ceiling transition emits the max event.
	e = obs(91)
	require.NotNil(t, e)
	assert.Equal(t, EventMaxSocReached, e.EventType)

	// Back down and to the floor again: new edge, new event.
	assert.Nil(t, obs(50))
	require.NotNil(t, obs(2))
}

func TestDetectorFirstObservationAtBoundary(t *testing.T) {
	d := NewDetector()
	a := bandedAsset()

	e := d.Observe(a, &sim.Telemetry{AssetID: a.ID, SocMWhr: 0})
	require.NotNil(t, e)
	assert.Equal(t, EventMinSocReached, e.EventType)
}

func TestBusFanOutAndDrop(t *testing.T) {
	b := NewBus()
	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	tel := &sim.Telemetry{AssetID: uuid.New(), SocMWhr: 42}
	b.PublishTelemetry(tel)

	m1 := <-ch1
	require.Equal(t, "telemetry", m1.Kind)
	assert.Equal(t, 42.0, m1.Telemetry.SocMWhr)
	m2 := <-ch2
	assert.Equal(t, tel.AssetID, m2.Telemetry.AssetID)

	cancel1()
	assert.Equal(t, 1, b.SubscriberCount())
	// Cancelled channel is closed.
	_, open := <-ch1
	assert.False(t, open)

	// Cancel twice is safe.
	cancel1()

	ev := &sim.Event{ID: uuid.New(), EventType: EventMinSocReached}
	b.PublishEvent(ev)
	m := <-ch2
	require.Equal(t, "event", m.Kind)
	assert.Equal(t, ev.ID, m.Event.ID)
}
