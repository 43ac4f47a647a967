package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"campushub/internal/store"
)

// Snapshot is the message pushed to subscribers: the full state of one
// collection after any change within it.
type Snapshot struct {
	Type       string         `json:"type"`
	Collection string         `json:"collection"`
	Records    []store.Record `json:"records"`
}

// Hub fans collection snapshots out to websocket subscribers. Each client
// subscribes to a single collection; the hub owns the store watch and owns
// teardown, so no shared mutable aggregation state leaks into closures.
type Hub struct {
	store store.Store

	mu      sync.Mutex
	clients map[string]map[*websocket.Conn]struct{}
	closed  bool
}

// NewHub creates a hub watching the given store for changes.
func NewHub(st store.Store) *Hub {
	h := &Hub{
		store:   st,
		clients: make(map[string]map[*websocket.Conn]struct{}),
	}
	st.Watch(h.onChange)
	return h
}

// Subscribe registers a websocket for a collection and pushes the current
// snapshot immediately.
func (h *Hub) Subscribe(collection string, ws *websocket.Conn) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = ws.Close()
		return
	}
	subs, ok := h.clients[collection]
	if !ok {
		subs = make(map[*websocket.Conn]struct{})
		h.clients[collection] = subs
	}
	subs[ws] = struct{}{}
	h.mu.Unlock()

	h.push(collection)
}

// Unsubscribe removes and closes a client connection.
func (h *Hub) Unsubscribe(collection string, ws *websocket.Conn) {
	h.mu.Lock()
	if subs, ok := h.clients[collection]; ok {
		delete(subs, ws)
		if len(subs) == 0 {
			delete(h.clients, collection)
		}
	}
	h.mu.Unlock()
	_ = ws.Close()
}

// Close tears down every subscriber connection.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for _, subs := range h.clients {
		for ws := range subs {
			_ = ws.Close()
		}
	}
	h.clients = make(map[string]map[*websocket.Conn]struct{})
	h.mu.Unlock()
}

// onChange re-reads the changed collection and broadcasts a fresh
// snapshot. Runs on the store's mutation path, so the read happens on a
// separate goroutine.
func (h *Hub) onChange(collection string) {
	h.mu.Lock()
	_, anyone := h.clients[collection]
	h.mu.Unlock()
	if !anyone {
		return
	}
	go h.push(collection)
}

func (h *Hub) push(collection string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	recs, err := h.store.List(ctx, collection)
	if err != nil {
		log.Printf("snapshot read for %s failed: %v", collection, err)
		return
	}
	payload, err := json.Marshal(Snapshot{Type: "snapshot", Collection: collection, Records: recs})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients[collection] {
		_ = ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			_ = ws.Close()
			delete(h.clients[collection], ws)
		}
	}
}

// Stats reports subscriber counts per collection.
func (h *Hub) Stats() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.clients))
	for col, subs := range h.clients {
		out[col] = len(subs)
	}
	return out
}
