// Package http implements the admin control surface (spec
// §4.7's Info/Stop, exposed over HTTP rather than the dropped gRPC
// stack — see SPEC_FULL.md's DOMAIN STACK for the rationale).
// Grounded on the chi router wiring style of the teacher's
// internal/handler/lp/delivery.go.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/outpostrun/enginehost/internal/admin/ws"
	"github.com/outpostrun/enginehost/internal/host"
)

// NewRouter builds the admin HTTP surface over h.
func NewRouter(h *host.Host, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/healthz", handleHealthz)
	r.Get("/apps", handleApps(h))
	r.Get("/apps/{app}/snapshot", handleSnapshot(h))
	r.Post("/apps/{app}/stop", handleStop(h))
	r.Get("/apps/{app}/ws", handleDashboard(h, log))

	return r
}

func handleDashboard(h *host.Host, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app := chi.URLParam(r, "app")
		ws.Handler(h, app, time.Second, log)(w, r)
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func handleApps(h *host.Host) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.Names())
	}
}

func handleSnapshot(h *host.Host) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app := chi.URLParam(r, "app")
		e, ok := h.Engine(app)
		if !ok {
			http.Error(w, "unknown app", http.StatusNotFound)
			return
		}
		snap, err := e.Info()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleStop(h *host.Host) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app := chi.URLParam(r, "app")
		e, ok := h.Engine(app)
		if !ok {
			http.Error(w, "unknown app", http.StatusNotFound)
			return
		}
		if err := e.Stop(); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
