package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/voltgrid/bess/internal/dispatch"
	"github.com/voltgrid/bess/internal/headend"
	"github.com/voltgrid/bess/internal/journal"
	"github.com/voltgrid/bess/internal/registry"
	"github.com/voltgrid/bess/internal/sim"
)

func context5s(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad id %q: %w", raw, sim.ErrBadRequest)
	}
	return id, nil
}

func getHealth(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":           "healthy",
			"assets":           len(state.Catalog.ListAll()),
			"agents_connected": state.Streams.ConnectedCount(),
			"journal":          "absent",
		}
		status := http.StatusOK
		if state.Journal != nil {
			ctx, cancel := context5s(r)
			defer cancel()
			if err := state.Journal.Ping(ctx); err != nil {
				body["status"] = "degraded"
				body["journal"] = "error"
				status = http.StatusServiceUnavailable
			} else {
				body["journal"] = "connected"
			}
		}
		respondJSON(w, status, body)
	}
}

func listAssets(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assets := state.Catalog.ListAll()
		views := make([]AssetView, 0, len(assets))
		for _, a := range assets {
			views = append(views, buildAssetView(state, a))
		}
		respondJSON(w, http.StatusOK, views)
	}
}

func getAsset(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, err)
			return
		}
		asset, ok := state.Catalog.ByID(id)
		if !ok {
			respondError(w, fmt.Errorf("asset %s: %w", id, sim.ErrNotFound))
			return
		}
		respondJSON(w, http.StatusOK, buildAssetView(state, asset))
	}
}

func listSites(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sites := state.Catalog.Sites()
		views := make([]SiteView, 0, len(sites))
		for _, s := range sites {
			views = append(views, buildSiteView(state, s.ID))
		}
		respondJSON(w, http.StatusOK, views)
	}
}

// AgentsResponse lists live connections next to recent journal sessions. A
// still-open journal session for a currently connected asset is the live
// connection; it is dropped from the history list.
type AgentsResponse struct {
	Connected []registry.Connection `json:"connected"`
	Sessions  []journal.Session     `json:"sessions"`
}

func listAgents(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := AgentsResponse{
			Connected: state.Streams.Connections(),
			Sessions:  []journal.Session{},
		}
		if state.Journal != nil {
			sessions, err := state.Journal.RecentSessions(r.Context(), 5)
			if err != nil {
				state.Metrics.JournalErrors.WithLabelValues("recent_sessions").Inc()
				logger.Printf("recent sessions query failed: %v", err)
			} else {
				for _, s := range sessions {
					if s.DisconnectedAt == nil && state.Streams.IsOnline(s.AssetID) {
						continue
					}
					resp.Sessions = append(resp.Sessions, s)
				}
			}
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

func postTelemetry(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tel sim.Telemetry
		if err := json.NewDecoder(r.Body).Decode(&tel); err != nil {
			respondError(w, fmt.Errorf("decode telemetry: %v: %w", err, sim.ErrBadRequest))
			return
		}
		if _, ok := state.Catalog.ByID(tel.AssetID); !ok {
			respondError(w, fmt.Errorf("asset %s: %w", tel.AssetID, sim.ErrNotFound))
			return
		}
		state.IngestTelemetry(r.Context(), tel)
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func getTelemetry(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, err)
			return
		}
		if tel, ok := state.Latest(id); ok {
			respondJSON(w, http.StatusOK, tel)
			return
		}
		if tel, ok := state.Sim.SyntheticTick(id); ok {
			respondJSON(w, http.StatusOK, tel)
			return
		}
		respondError(w, fmt.Errorf("asset %s: %w", id, sim.ErrNotFound))
	}
}

func getTelemetryHistory(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, err)
			return
		}
		if state.Journal == nil {
			respondError(w, fmt.Errorf("history requires a journal: %w", sim.ErrJournalUnavailable))
			return
		}
		start, err := parseTimeParam(r, "start")
		if err != nil {
			respondError(w, err)
			return
		}
		end, err := parseTimeParam(r, "end")
		if err != nil {
			respondError(w, err)
			return
		}
		rows, err := state.Journal.TelemetryHistory(r.Context(), id, start, end, journal.DefaultHistoryLimit)
		if err != nil {
			respondError(w, fmt.Errorf("telemetry history: %v: %w", err, sim.ErrJournalUnavailable))
			return
		}
		if rows == nil {
			rows = []sim.Telemetry{}
		}
		respondJSON(w, http.StatusOK, rows)
	}
}

func postDispatch(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dispatch.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, fmt.Errorf("decode dispatch request: %v: %w", err, sim.ErrBadRequest))
			return
		}
		res, err := engine.Submit(r.Context(), req)
		if err != nil {
			respondError(w, err)
			return
		}
		if res.Dispatch != nil {
			respondJSON(w, http.StatusOK, res.Dispatch)
			return
		}
		respondJSON(w, http.StatusOK, res.Site)
	}
}

func getDispatchHistory(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if state.Journal == nil {
			respondError(w, fmt.Errorf("history requires a journal: %w", sim.ErrJournalUnavailable))
			return
		}
		rows, err := state.Journal.DispatchHistory(r.Context(), journal.DefaultHistoryLimit)
		if err != nil {
			respondError(w, fmt.Errorf("dispatch history: %v: %w", err, sim.ErrJournalUnavailable))
			return
		}
		if rows == nil {
			rows = []sim.Dispatch{}
		}
		respondJSON(w, http.StatusOK, rows)
	}
}

// eventRequest is the POST /events body.
type eventRequest struct {
	AssetID   uuid.UUID `json:"asset_id"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
}

func postEvent(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, fmt.Errorf("decode event: %v: %w", err, sim.ErrBadRequest))
			return
		}
		asset, ok := state.Catalog.ByID(req.AssetID)
		if !ok {
			respondError(w, fmt.Errorf("asset %s: %w", req.AssetID, sim.ErrNotFound))
			return
		}
		if req.EventType == "" {
			respondError(w, fmt.Errorf("event_type is required: %w", sim.ErrBadRequest))
			return
		}
		severity := req.Severity
		if severity == "" {
			severity = sim.SeverityInfo
		}
		e := sim.Event{
			ID:        uuid.New(),
			AssetID:   asset.ID,
			SiteID:    asset.SiteID,
			Timestamp: time.Now().UTC(),
			EventType: req.EventType,
			Severity:  severity,
			Message:   req.Message,
		}
		state.RecordEvent(r.Context(), e)
		respondJSON(w, http.StatusOK, e)
	}
}

func getEventHistory(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, err)
			return
		}
		if state.Journal == nil {
			respondError(w, fmt.Errorf("history requires a journal: %w", sim.ErrJournalUnavailable))
			return
		}
		rows, err := state.Journal.EventHistory(r.Context(), id, journal.DefaultHistoryLimit)
		if err != nil {
			respondError(w, fmt.Errorf("event history: %v: %w", err, sim.ErrJournalUnavailable))
			return
		}
		if rows == nil {
			rows = []sim.Event{}
		}
		respondJSON(w, http.StatusOK, rows)
	}
}

func getHeartbeat(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, err)
			return
		}
		if state.Journal == nil {
			respondError(w, fmt.Errorf("heartbeats require a journal: %w", sim.ErrJournalUnavailable))
			return
		}
		ts, ok, err := state.Journal.LatestHeartbeat(r.Context(), id)
		if err != nil {
			respondError(w, fmt.Errorf("latest heartbeat: %v: %w", err, sim.ErrJournalUnavailable))
			return
		}
		if !ok {
			respondError(w, fmt.Errorf("no heartbeat for asset %s: %w", id, sim.ErrNotFound))
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"asset_id": id, "timestamp": ts})
	}
}

func getHeartbeatHistory(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, err)
			return
		}
		if state.Journal == nil {
			respondError(w, fmt.Errorf("heartbeats require a journal: %w", sim.ErrJournalUnavailable))
			return
		}
		rows, err := state.Journal.HeartbeatHistory(r.Context(), id, journal.DefaultHistoryLimit)
		if err != nil {
			respondError(w, fmt.Errorf("heartbeat history: %v: %w", err, sim.ErrJournalUnavailable))
			return
		}
		if rows == nil {
			rows = []time.Time{}
		}
		respondJSON(w, http.StatusOK, rows)
	}
}

func parseTimeParam(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("bad %s %q: %w", key, raw, sim.ErrBadRequest)
	}
	return &t, nil
}
