// Package events holds the SOC boundary edge detector and the in-process feed
// bus behind the live websocket stream.
package events

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/bess/internal/sim"
)

// Zone classifies an asset's SOC against its band.
type Zone int

const (
	ZoneUnknown Zone = iota
	ZoneBelowMin
	ZoneInRange
	ZoneAboveMax
)

// Event types emitted on boundary entry.
const (
	EventMinSocReached = "MIN_SOC_REACHED"
	EventMaxSocReached = "MAX_SOC_REACHED"
)

// ZoneOf places a SOC reading in the asset's band.
func ZoneOf(asset *sim.Asset, socMWhr float64) Zone {
	minSoc, maxSoc := asset.SocBounds()
	switch {
	case socMWhr <= minSoc+sim.Eps:
		return ZoneBelowMin
	case socMWhr >= maxSoc-sim.Eps:
		return ZoneAboveMax
	default:
		return ZoneInRange
	}
}

// Detector tracks the last observed zone per asset and emits exactly one
// event when an asset enters a boundary zone. Returning to range emits
// nothing; the detector stays quiet until the next transition.
type Detector struct {
	mu     sync.Mutex
	zones  map[uuid.UUID]Zone
	logger *log.Logger
}

// NewDetector returns an empty detector.
func NewDetector() *Detector {
	return &Detector{
		zones:  make(map[uuid.UUID]Zone),
		logger: log.New(log.Writer(), "[soc-detector] ", log.LstdFlags),
	}
}

// Observe feeds one telemetry reading. The returned event is nil unless the
// asset just crossed into a boundary zone.
func (d *Detector) Observe(asset *sim.Asset, t *sim.Telemetry) *sim.Event {
	zone := ZoneOf(asset, t.SocMWhr)

	d.mu.Lock()
	prev := d.zones[asset.ID]
	d.zones[asset.ID] = zone
	d.mu.Unlock()

	if zone == prev || zone == ZoneInRange {
		return nil
	}
	eventType := EventMinSocReached
	if zone == ZoneAboveMax {
		eventType = EventMaxSocReached
	}
	d.logger.Printf("asset=%s %s soc_mwhr=%.4f", asset.ID, eventType, t.SocMWhr)
	return &sim.Event{
		ID:        uuid.New(),
		AssetID:   asset.ID,
		SiteID:    asset.SiteID,
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Severity:  sim.SeverityWarning,
		Message:   eventType,
	}
}

// FeedMessage is one item on the live feed: a telemetry frame or an event.
type FeedMessage struct {
	Kind      string         `json:"kind"` // telemetry | event
	Telemetry *sim.Telemetry `json:"telemetry,omitempty"`
	Event     *sim.Event     `json:"event,omitempty"`
}

// Bus is an in-process fan-out feed. Slow subscribers lose messages instead
// of stalling the ingest path.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan FeedMessage
	nextID  int
	logger  *log.Logger
	bufSize int
}

// NewBus returns an empty feed bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[int]chan FeedMessage),
		logger:  log.New(log.Writer(), "[feed] ", log.LstdFlags),
		bufSize: 100,
	}
}

// Subscribe returns a receive channel and a cancel function. Cancel closes
// the channel.
func (b *Bus) Subscribe() (<-chan FeedMessage, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan FeedMessage, b.bufSize)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish fans the message out to all subscribers, dropping it for any whose
// buffer is full.
func (b *Bus) Publish(msg FeedMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			b.logger.Printf("dropping %s message for slow subscriber %d", msg.Kind, id)
		}
	}
}

// PublishTelemetry is a convenience wrapper for the ingest path.
func (b *Bus) PublishTelemetry(t *sim.Telemetry) {
	b.Publish(FeedMessage{Kind: "telemetry", Telemetry: t})
}

// PublishEvent is a convenience wrapper for the event path.
func (b *Bus) PublishEvent(e *sim.Event) {
	b.Publish(FeedMessage{Kind: "event", Event: e})
}

// SubscriberCount reports the live subscriber count.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
