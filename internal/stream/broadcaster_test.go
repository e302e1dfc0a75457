package stream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/turf/internal/events"
)

// dial connects a test WebSocket client to the broadcaster.
func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForConnections polls until the broadcaster sees the expected number of
// clients.
func waitForConnections(t *testing.T, b *Broadcaster, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ConnectionCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("connection count = %d, want %d", b.ConnectionCount(), want)
}

// TestBroadcaster_DeliversEvents verifies a published bus event reaches every
// connected client as JSON.
func TestBroadcaster_DeliversEvents(t *testing.T) {
	bus := events.NewBus()
	b := NewBroadcaster()
	defer b.Close()
	go b.Run(bus)

	server := httptest.NewServer(b)
	defer server.Close()

	first := dial(t, server)
	second := dial(t, server)
	waitForConnections(t, b, 2)

	bus.Publish(events.Event{
		Kind: events.KindClaimConfirmed,
		Claim: &events.ClaimPayload{
			TransactionID: "tx1",
			TerritoryID:   "t1",
		},
	})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage failed: %v", err)
		}

		var ev events.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("invalid JSON frame: %v", err)
		}
		if ev.Kind != events.KindClaimConfirmed {
			t.Errorf("event kind = %s, want claim_confirmed", ev.Kind)
		}
		if ev.Claim == nil || ev.Claim.TerritoryID != "t1" {
			t.Errorf("claim payload = %+v", ev.Claim)
		}
	}
}

// TestBroadcaster_DisconnectCleanup verifies a closed client is removed from
// the connection registry.
func TestBroadcaster_DisconnectCleanup(t *testing.T) {
	bus := events.NewBus()
	b := NewBroadcaster()
	defer b.Close()
	go b.Run(bus)

	server := httptest.NewServer(b)
	defer server.Close()

	conn := dial(t, server)
	waitForConnections(t, b, 1)

	conn.Close()
	waitForConnections(t, b, 0)
}

// TestBroadcaster_Close drops connections and is safe to call twice.
func TestBroadcaster_Close(t *testing.T) {
	bus := events.NewBus()
	b := NewBroadcaster()
	go b.Run(bus)

	server := httptest.NewServer(b)
	defer server.Close()

	dial(t, server)
	waitForConnections(t, b, 1)

	b.Close()
	b.Close()

	if got := b.ConnectionCount(); got != 0 {
		t.Errorf("connection count after close = %d, want 0", got)
	}
}
