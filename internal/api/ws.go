package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ledgerline/advisor-plane/internal/events"
)

const wsWriteTimeout = 10 * time.Second

// isBroadcast reports whether an event reaches every live session even
// when it carries a client ID. New and mutated actionable items announce
// registry changes; dispatch progress stays scoped to watchers.
func isBroadcast(eventType string) bool {
	return eventType == events.TypeItemCreated || eventType == events.TypeItemMutated
}

type wsClientMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
	Text     string `json:"text"`
}

// handleWebSocket runs the bidirectional channel. The connection holds one
// global broker subscription filtered down to its watched clients plus
// pure broadcasts; a slow reader drops events rather than stalling the
// broker (at-most-once, no replay on reconnect).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return s.originAllowed(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var mu sync.Mutex
	watched := map[string]struct{}{}
	watch := func(clientID string) {
		clientID = strings.TrimSpace(clientID)
		if clientID == "" {
			return
		}
		mu.Lock()
		watched[clientID] = struct{}{}
		mu.Unlock()
	}
	isWatched := func(clientID string) bool {
		mu.Lock()
		defer mu.Unlock()
		_, ok := watched[clientID]
		return ok
	}

	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		watch(clientID)
	}

	out := make(chan any, 32)
	enqueue := func(message any) {
		select {
		case out <- message:
		default:
		}
	}

	feed := s.broker.SubscribeGlobal(ctx)
	go func() {
		for event := range feed {
			if event.ClientID != "" && !isBroadcast(event.Type) && !isWatched(event.ClientID) {
				continue
			}
			enqueue(event)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case message := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(message); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg wsClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			enqueue(events.Event{Type: events.TypeError, Payload: map[string]any{"error": "invalid message"}})
			continue
		}
		switch strings.ToLower(strings.TrimSpace(msg.Type)) {
		case "submit_request":
			watch(msg.ClientID)
			response, _, err := s.startDispatch(ctx, msg.ClientID, msg.Text)
			if err != nil {
				enqueue(events.Event{
					Type:     events.TypeError,
					ClientID: msg.ClientID,
					Payload:  map[string]any{"error": err.Error()},
				})
				continue
			}
			log.Printf("ws: dispatch accepted client=%s dispatch=%s", msg.ClientID, response["dispatch_id"])
		case "watch":
			watch(msg.ClientID)
		case "ping":
			enqueue(map[string]string{"type": "pong"})
		default:
			enqueue(events.Event{Type: events.TypeError, Payload: map[string]any{"error": "unknown message type: " + msg.Type}})
		}
	}
	cancel()
	<-done
}
