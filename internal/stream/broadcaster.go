// Package stream provides WebSocket event broadcasting for real-time
// session, territory, and claim updates.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/onnwee/turf/internal/events"
)

// Broadcaster fans bus events out to connected WebSocket clients. Each
// client receives every event as a JSON text message.
type Broadcaster struct {
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[*websocket.Conn]bool

	done chan struct{}
	once sync.Once
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*websocket.Conn]bool),
		done:        make(chan struct{}),
	}
}

// Run consumes events from the bus until Close is called or the
// subscription ends. Intended to run on its own goroutine.
func (b *Broadcaster) Run(bus *events.Bus) {
	ch, cancel := bus.Subscribe()
	defer cancel()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			b.broadcast(ev)
		case <-b.done:
			return
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and registers it
// for broadcasts. The connection is held open until the client disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	b.subscribe(conn)
	defer b.unsubscribe(conn)

	// Drain client frames to detect disconnects; inbound payloads are
	// ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) subscribe(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connections[conn] = true
}

func (b *Broadcaster) unsubscribe(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.connections, conn)
	conn.Close()
}

func (b *Broadcaster) broadcast(ev events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.connections) == 0 {
		return
	}

	// Serialize once per event
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal event", "error", err, "kind", ev.Kind)
		return
	}

	for conn := range b.connections {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("failed to send message to websocket client",
				"error", err,
				"kind", ev.Kind,
			)
			// Connection will be cleaned up when the client disconnects
		}
	}
}

// ConnectionCount returns the number of active WebSocket connections.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.connections)
}

// Close stops the broadcast loop and drops all connections.
func (b *Broadcaster) Close() {
	b.once.Do(func() { close(b.done) })

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.connections {
		conn.Close()
	}
	b.connections = make(map[*websocket.Conn]bool)
}
