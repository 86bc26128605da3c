// Package httpapi is the operator surface: JSON endpoints for assets, sites,
// telemetry, dispatch and history, a live websocket feed and the Prometheus
// endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voltgrid/bess/internal/dispatch"
	"github.com/voltgrid/bess/internal/headend"
	"github.com/voltgrid/bess/internal/sim"
)

var logger = log.New(log.Writer(), "[http] ", log.LstdFlags)

// NewRouter builds the operator router.
func NewRouter(state *headend.AppState, engine *dispatch.Engine) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", getHealth(state)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/assets", listAssets(state)).Methods("GET")
	router.HandleFunc("/assets/{id}", getAsset(state)).Methods("GET")
	router.HandleFunc("/sites", listSites(state)).Methods("GET")
	router.HandleFunc("/agents", listAgents(state)).Methods("GET")

	router.HandleFunc("/telemetry", postTelemetry(state)).Methods("POST")
	router.HandleFunc("/telemetry/{id}", getTelemetry(state)).Methods("GET")
	router.HandleFunc("/telemetry/{id}/history", getTelemetryHistory(state)).Methods("GET")

	router.HandleFunc("/dispatch", postDispatch(engine)).Methods("POST")
	router.HandleFunc("/dispatch/history", getDispatchHistory(state)).Methods("GET")

	router.HandleFunc("/events", postEvent(state)).Methods("POST")
	router.HandleFunc("/events/{id}/history", getEventHistory(state)).Methods("GET")

	router.HandleFunc("/heartbeat/{id}", getHeartbeat(state)).Methods("GET")
	router.HandleFunc("/heartbeat/{id}/history", getHeartbeatHistory(state)).Methods("GET")

	router.HandleFunc("/ws/telemetry", streamTelemetry(state))

	router.Use(corsMiddleware)
	router.Use(loggingMiddleware)
	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Printf("%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Printf("response encode failed: %v", err)
	}
}

// respondError maps the error taxonomy onto HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sim.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sim.ErrBadRequest),
		errors.Is(err, sim.ErrOutOfBounds),
		errors.Is(err, sim.ErrAtMinSoc),
		errors.Is(err, sim.ErrAtMaxSoc),
		errors.Is(err, sim.ErrNoOnlineAssets):
		status = http.StatusBadRequest
	case errors.Is(err, sim.ErrJournalUnavailable):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
