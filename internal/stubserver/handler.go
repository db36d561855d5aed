// Package stubserver serves simulated telemetry snapshots in the same wire
// shape as a real monitoring endpoint.
package stubserver

import (
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	"aethermon/render"
	"aethermon/snapshot"

	"github.com/gorilla/websocket"
)

// SnapshotSource supplies the snapshot to serve for each request.
type SnapshotSource interface {
	Snapshot() *snapshot.Snapshot
}

// Handler answers websocket frames, .json requests and page requests.
type Handler struct {
	source   SnapshotSource
	upgrader websocket.Upgrader
	logger   *log.Logger

	frames  atomic.Uint64
	clients atomic.Int64
}

// New returns a handler serving source. A nil logger uses the standard logger.
func New(source SnapshotSource, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		source: source,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case websocket.IsWebSocketUpgrade(r):
		h.serveWebsocket(w, r)
	case strings.HasSuffix(r.URL.Path, ".json"):
		h.serveJSON(w)
	default:
		h.servePage(w)
	}
}

// serveWebsocket replies to every inbound frame with the current snapshot.
func (h *Handler) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("Stub: websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	defer ws.Close()
	h.clients.Add(1)
	defer h.clients.Add(-1)
	h.logger.Printf("Stub: client %s connected", r.RemoteAddr)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Printf("Stub: client %s read failed: %v", r.RemoteAddr, err)
			}
			return
		}
		payload, err := snapshot.Encode(h.source.Snapshot())
		if err != nil {
			h.logger.Printf("Stub: encode failed: %v", err)
			return
		}
		if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
		h.frames.Add(1)
	}
}

func (h *Handler) serveJSON(w http.ResponseWriter) {
	payload, err := snapshot.Encode(h.source.Snapshot())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (h *Handler) servePage(w http.ResponseWriter) {
	tree := render.Render(h.source.Snapshot())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.HTMLPage(w, tree, render.PageOptions{Title: "aether stub", RefreshSeconds: 1}); err != nil {
		h.logger.Printf("Stub: page render failed: %v", err)
	}
}

// Frames is the number of websocket replies sent.
func (h *Handler) Frames() uint64 { return h.frames.Load() }

// Clients is the number of connected websocket clients.
func (h *Handler) Clients() int64 { return h.clients.Load() }
