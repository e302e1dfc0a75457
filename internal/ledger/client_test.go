package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/turf/internal/territory"
)

// ledgerStub serves the remote ledger API surface the client depends on.
func ledgerStub(t *testing.T, existingKeys map[string]bool, networks map[string]bool) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /keys/{key}", func(w http.ResponseWriter, r *http.Request) {
		if existingKeys[r.PathValue("key")] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /claims", func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TerritoryID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(submitResponse{Handle: "handle-" + req.TerritoryID})
	})
	mux.HandleFunc("POST /networks/{id}/connect", func(w http.ResponseWriter, r *http.Request) {
		if !networks[r.PathValue("id")] {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestPing_SetsReadiness(t *testing.T) {
	server := ledgerStub(t, nil, nil)
	c := NewClient(server.URL, "0xabc", "base")

	if c.IsReady() {
		t.Error("client ready before first ping")
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if !c.IsReady() {
		t.Error("client not ready after successful ping")
	}

	server.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Error("ping against closed server succeeded")
	}
	if c.IsReady() {
		t.Error("client still ready after failed ping")
	}
}

func TestKeyExists(t *testing.T) {
	server := ledgerStub(t, map[string]bool{"c23nb62": true}, nil)
	c := NewClient(server.URL, "0xabc", "base")

	exists, err := c.KeyExists(context.Background(), "c23nb62")
	if err != nil || !exists {
		t.Errorf("KeyExists(known) = %t, %v", exists, err)
	}
	exists, err = c.KeyExists(context.Background(), "zzzzzzz")
	if err != nil || exists {
		t.Errorf("KeyExists(unknown) = %t, %v", exists, err)
	}
}

// TestMalformedKeysRejected verifies keys that are not clean geohashes are
// refused before any request is built, since they would be interpolated into
// the URL path.
func TestMalformedKeysRejected(t *testing.T) {
	server := ledgerStub(t, nil, nil)
	c := NewClient(server.URL, "0xabc", "base")

	for _, key := range []string{"", "c23nb62/extra", "UPPER!", "a1b2c3"} {
		if _, err := c.KeyExists(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("KeyExists(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}

	_, err := c.Submit(context.Background(), territory.Territory{
		ID:            "t1",
		UniquenessKey: "../keys",
	}, "base")
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Submit error = %v, want ErrInvalidKey", err)
	}
}

func TestSubmit(t *testing.T) {
	server := ledgerStub(t, nil, nil)
	c := NewClient(server.URL, "0xabc", "base")

	handle, err := c.Submit(context.Background(), territory.Territory{
		ID:            "t1",
		UniquenessKey: "c23nb62",
	}, "base")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if handle != "handle-t1" {
		t.Errorf("handle = %q", handle)
	}
}

func TestSwitchNetwork(t *testing.T) {
	server := ledgerStub(t, nil, map[string]bool{"arbitrum": true})
	c := NewClient(server.URL, "0xabc", "base")

	if err := c.SwitchNetwork(context.Background(), "arbitrum"); err != nil {
		t.Fatalf("SwitchNetwork failed: %v", err)
	}
	if got := c.CurrentNetworkID(); got != "arbitrum" {
		t.Errorf("network = %q, want arbitrum", got)
	}

	if err := c.SwitchNetwork(context.Background(), "unsupported"); err == nil {
		t.Error("switch to unsupported network succeeded")
	}
	if got := c.CurrentNetworkID(); got != "arbitrum" {
		t.Errorf("network changed on failed switch: %q", got)
	}
}
