package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"canvas_server/agent"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The canvas UI is served from a different origin in development.
		return true
	},
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// sessionWS upgrades to a websocket and pushes the session's current state
// followed by every snapshot the bus publishes, until the client disconnects.
func (h *canvasHandler) sessionWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed for session %s: %v", sessionID, err)
		return
	}
	defer conn.Close()

	// Subscribe before sending the initial state so no snapshot published
	// in between is lost.
	ch := h.deps.Bus.Subscribe(sessionID)
	defer h.deps.Bus.Unsubscribe(sessionID, ch)

	initial := agent.StreamEvent{
		Event:     agent.EventStateSnapshot,
		SessionID: sessionID,
		Data:      map[string]any{"state": h.deps.Store.Get(sessionID)},
	}
	if err := writeWS(conn, initial); err != nil {
		return
	}

	// Read pump: we never expect client messages, but reading is what
	// surfaces the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeWS(conn, evt); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, evt agent.StreamEvent) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(evt.Data)
}
