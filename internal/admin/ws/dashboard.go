// Package ws pushes live Info() snapshots to connected operator
// dashboards over a websocket, grounded on the pump-loop shape of the
// teacher's internal/handler/ws/delivery.go (a per-connection write
// goroutine reading off a buffered channel, closed once on either
// side's disconnect).
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/outpostrun/enginehost/internal/engine"
	"github.com/outpostrun/enginehost/internal/host"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades requests to a websocket that receives one JSON
// snapshot per tick for the named app until the client disconnects.
func Handler(h *host.Host, app string, tick time.Duration, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := h.Engine(app)
		if !ok {
			http.Error(w, "unknown app", http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "app", app, "error", err)
			return
		}
		defer conn.Close()

		pumpSnapshots(conn, e, tick, log)
	}
}

// pumpSnapshots writes one JSON-encoded snapshot per tick until the
// connection errors or the client closes it. A reader goroutine drains
// (and discards) client frames solely to detect disconnects, matching
// the teacher's ws pump pattern.
func pumpSnapshots(conn *websocket.Conn, e *engine.Engine, tick time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	done := make(chan struct{})
	var once sync.Once
	closeDone := func() { once.Do(func() { close(done) }) }

	go func() {
		defer closeDone()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			snap, err := e.Info()
			if err != nil {
				return
			}
			body, err := json.Marshal(snap)
			if err != nil {
				log.Warn("marshal snapshot for websocket push", "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		}
	}
}
