// Package headend assembles the control plane: catalogue, simulator, stream
// registry, latest-telemetry cache, journal, SOC detector, live feed and
// metrics behind one AppState value.
package headend

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/bess/internal/catalog"
	"github.com/voltgrid/bess/internal/events"
	"github.com/voltgrid/bess/internal/journal"
	"github.com/voltgrid/bess/internal/metrics"
	"github.com/voltgrid/bess/internal/registry"
	"github.com/voltgrid/bess/internal/sim"
	"github.com/voltgrid/bess/internal/simulator"
)

// AppState is the single shared value behind the gRPC and HTTP surfaces.
type AppState struct {
	Catalog  *catalog.Registry
	Sim      *simulator.Simulator
	Streams  *registry.Registry
	Journal  journal.Journal // nil when no DATABASE_URL is configured
	Detector *events.Detector
	Feed     *events.Bus
	Metrics  *metrics.Metrics

	mu     sync.RWMutex
	latest map[uuid.UUID]sim.Telemetry

	logger *log.Logger
}

// New wires an AppState. jnl may be nil.
func New(cat *catalog.Registry, jnl journal.Journal, met *metrics.Metrics) *AppState {
	return &AppState{
		Catalog:  cat,
		Sim:      simulator.New(cat),
		Streams:  registry.New(),
		Journal:  jnl,
		Detector: events.NewDetector(),
		Feed:     events.NewBus(),
		Metrics:  met,
		latest:   make(map[uuid.UUID]sim.Telemetry),
		logger:   log.New(log.Writer(), "[headend] ", log.LstdFlags),
	}
}

// HydrateFromJournal resumes SOC continuity after a restart. Safe no-op
// without a journal.
func (s *AppState) HydrateFromJournal(ctx context.Context) {
	if s.Journal == nil {
		return
	}
	rows, err := s.Journal.LatestTelemetryAll(ctx)
	if err != nil {
		s.Metrics.JournalErrors.WithLabelValues("latest_telemetry_all").Inc()
		s.logger.Printf("hydration query failed: %v", err)
		return
	}
	s.Sim.Hydrate(rows)
	s.mu.Lock()
	for _, row := range rows {
		s.latest[row.AssetID] = row
	}
	s.mu.Unlock()
	s.logger.Printf("hydrated %d assets from journal", len(rows))
}

// Latest returns the cached newest telemetry for an asset.
func (s *AppState) Latest(assetID uuid.UUID) (sim.Telemetry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.latest[assetID]
	return t, ok
}

// LatestSoc satisfies the dispatch engine's SocSource.
func (s *AppState) LatestSoc(assetID uuid.UUID) (float64, bool) {
	t, ok := s.Latest(assetID)
	if !ok {
		return 0, false
	}
	return t.SocMWhr, true
}

// IngestTelemetry applies one observed reading: cache, local model, journal,
// SOC detector, live feed. Journal and detector failures never drop the
// reading. Readings from uncatalogued assets (gateways may speak for assets
// the catalogue has not learned yet) are cached and journaled too; only the
// local model and the SOC detector need catalogue bounds and are skipped.
func (s *AppState) IngestTelemetry(ctx context.Context, t sim.Telemetry) {
	asset, known := s.Catalog.ByID(t.AssetID)
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	s.latest[t.AssetID] = t
	s.mu.Unlock()

	if known {
		s.Sim.ApplyTelemetry(&t)
	}
	s.Metrics.TelemetryIngested.WithLabelValues(t.SiteName).Inc()

	if s.Journal != nil {
		if err := s.Journal.AppendTelemetry(ctx, []sim.Telemetry{t}); err != nil {
			s.Metrics.JournalErrors.WithLabelValues("append_telemetry").Inc()
			s.logger.Printf("journal telemetry append failed asset=%s: %v", t.AssetID, err)
		}
	}

	if known {
		if e := s.Detector.Observe(asset, &t); e != nil {
			s.Metrics.SocEvents.WithLabelValues(e.EventType).Inc()
			if s.Journal != nil {
				if err := s.Journal.AppendEvent(ctx, *e); err != nil {
					s.Metrics.JournalErrors.WithLabelValues("append_event").Inc()
					s.logger.Printf("journal event append failed asset=%s: %v", e.AssetID, err)
				}
			}
			s.Feed.PublishEvent(e)
		}
	}
	s.Feed.PublishTelemetry(&t)
}

// RecordEvent journals and publishes an externally supplied event.
func (s *AppState) RecordEvent(ctx context.Context, e sim.Event) {
	if s.Journal != nil {
		if err := s.Journal.AppendEvent(ctx, e); err != nil {
			s.Metrics.JournalErrors.WithLabelValues("append_event").Inc()
			s.logger.Printf("journal event append failed asset=%s: %v", e.AssetID, err)
		}
	}
	s.Feed.PublishEvent(&e)
}

// RecordHeartbeat journals a heartbeat timestamp.
func (s *AppState) RecordHeartbeat(ctx context.Context, assetID uuid.UUID, ts time.Time) {
	s.Metrics.HeartbeatsReceived.WithLabelValues(assetID.String()).Inc()
	if s.Journal == nil {
		return
	}
	if err := s.Journal.AppendHeartbeat(ctx, assetID, ts); err != nil {
		s.Metrics.JournalErrors.WithLabelValues("append_heartbeat").Inc()
		s.logger.Printf("journal heartbeat append failed asset=%s: %v", assetID, err)
	}
}
