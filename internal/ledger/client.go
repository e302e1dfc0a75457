// Package ledger provides the HTTP client for the settlement ledger RPC and
// the wallet state used when submitting claims.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/territory"
)

const requestTimeout = 10 * time.Second

// ErrInvalidKey is returned when a uniqueness key is not a well-formed
// geohash and cannot be sent to the ledger.
var ErrInvalidKey = errors.New("malformed uniqueness key")

// Client talks to the settlement ledger over HTTP. It implements both the
// submission and the wallet side of the claim flow: the wallet here is the
// service's own signing identity, so network switching is a local state
// change confirmed by the remote endpoint.
type Client struct {
	baseURL    string
	account    string
	httpClient *http.Client

	mu      sync.RWMutex
	network string
	ready   bool
}

// NewClient creates a ledger client pinned to the given account and starting
// network. The client reports not ready until the first successful Ping.
func NewClient(baseURL, account, networkID string) *Client {
	return &Client{
		baseURL:    baseURL,
		account:    account,
		network:    networkID,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Ping checks the ledger endpoint and updates readiness.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setReady(false)
		return fmt.Errorf("ledger unreachable: %w", err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK
	c.setReady(ok)
	if !ok {
		return fmt.Errorf("ledger health returned %d", resp.StatusCode)
	}
	return nil
}

// WatchReadiness pings the ledger on an interval until the context ends.
func (c *Client) WatchReadiness(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Ping(ctx); err != nil {
				slog.Warn("ledger readiness check failed", "error", err)
			}
		}
	}
}

func (c *Client) setReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

// IsReady reports whether the ledger accepted the last health check.
func (c *Client) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// KeyExists asks the ledger whether a uniqueness key is already registered.
func (c *Client) KeyExists(ctx context.Context, key string) (bool, error) {
	// The key lands in the request path, so it must be a clean geohash.
	if !geo.ValidKey(key) {
		return false, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/keys/"+key, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("key lookup failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("key lookup returned %d", resp.StatusCode)
	}
}

// submitRequest is the claim submission payload sent to the ledger.
type submitRequest struct {
	TerritoryID   string  `json:"territory_id"`
	UniquenessKey string  `json:"uniqueness_key"`
	NetworkID     string  `json:"network_id"`
	Account       string  `json:"account"`
	Reward        float64 `json:"reward"`
}

type submitResponse struct {
	Handle string `json:"handle"`
}

// Submit registers a claim with the ledger and returns the opaque
// transaction handle used for settlement callbacks.
func (c *Client) Submit(ctx context.Context, t territory.Territory, networkID string) (string, error) {
	if !geo.ValidKey(t.UniquenessKey) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, t.UniquenessKey)
	}
	body, err := json.Marshal(submitRequest{
		TerritoryID:   t.ID,
		UniquenessKey: t.UniquenessKey,
		NetworkID:     networkID,
		Account:       c.account,
		Reward:        t.Metadata.EstimatedReward,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/claims", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("claim submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("claim submission returned %d", resp.StatusCode)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("invalid submission response: %w", err)
	}
	if out.Handle == "" {
		return "", fmt.Errorf("ledger returned empty transaction handle")
	}
	return out.Handle, nil
}

// CurrentNetworkID returns the network the wallet is connected to.
func (c *Client) CurrentNetworkID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.network
}

// CurrentAccount returns the claiming account identity.
func (c *Client) CurrentAccount() string {
	return c.account
}

// SwitchNetwork moves the wallet to another network after the ledger
// confirms the target is supported.
func (c *Client) SwitchNetwork(ctx context.Context, networkID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/networks/"+networkID+"/connect", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network switch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("network %s rejected: status %d", networkID, resp.StatusCode)
	}

	c.mu.Lock()
	c.network = networkID
	c.mu.Unlock()

	slog.Info("switched settlement network", "network_id", networkID)
	return nil
}
