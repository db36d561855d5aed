package poller

import (
	"net/http"
	"testing"

	"github.com/gorilla/websocket"
)

// echoSnapshotHandler answers every inbound frame with payload.
func echoSnapshotHandler(t *testing.T, payload string) http.Handler {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				return
			}
		}
	})
}
