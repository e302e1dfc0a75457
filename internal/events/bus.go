// Package events provides a typed publish/subscribe bus for pipeline
// notifications. Every event carries a Kind tag and exactly one payload
// field, so subscribers can switch on the kind and the compiler keeps
// handler and payload in agreement.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/turf/internal/geo"
)

// Kind tags the payload carried by an Event.
type Kind string

// Event kinds emitted by the core pipeline.
const (
	KindSessionState   Kind = "session_state_changed"
	KindSessionStats   Kind = "session_stats_updated"
	KindTerritoryReady Kind = "territory_eligible"
	KindClaimSubmitted Kind = "claim_submitted"
	KindClaimConfirmed Kind = "claim_confirmed"
	KindClaimFailed    Kind = "claim_failed"
	KindProximityAlert Kind = "proximity_alert"
)

// SessionStatePayload describes a session state machine transition.
type SessionStatePayload struct {
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// SessionStatsPayload carries running aggregates after an accepted sample.
type SessionStatsPayload struct {
	SessionID           string  `json:"session_id"`
	TotalDistanceMeters float64 `json:"total_distance_meters"`
	TotalDurationMs     int64   `json:"total_duration_ms"`
	AvgSpeedMps         float64 `json:"avg_speed_mps"`
	MaxSpeedMps         float64 `json:"max_speed_mps"`
	SegmentCount        int     `json:"segment_count"`
}

// TerritoryReadyPayload announces a synthesized, claimable territory.
type TerritoryReadyPayload struct {
	TerritoryID   string  `json:"territory_id"`
	UniquenessKey string  `json:"uniqueness_key"`
	Name          string  `json:"name"`
	Rarity        string  `json:"rarity"`
	Reward        float64 `json:"reward"`
}

// ClaimPayload describes a claim transaction lifecycle event.
type ClaimPayload struct {
	TransactionID string `json:"transaction_id"`
	TerritoryID   string `json:"territory_id"`
	Route         string `json:"route,omitempty"`
	NetworkID     string `json:"network_id,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
}

// ProximityAlertPayload announces a territory entering the nearby threshold.
type ProximityAlertPayload struct {
	TerritoryID    string        `json:"territory_id"`
	Name           string        `json:"name"`
	DistanceMeters float64       `json:"distance_meters"`
	Direction      geo.Direction `json:"direction"`
}

// Event is the tagged union published on the bus. Exactly one payload field
// is non-nil, matching Kind.
type Event struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`

	SessionState   *SessionStatePayload   `json:"session_state,omitempty"`
	SessionStats   *SessionStatsPayload   `json:"session_stats,omitempty"`
	TerritoryReady *TerritoryReadyPayload `json:"territory_ready,omitempty"`
	Claim          *ClaimPayload          `json:"claim,omitempty"`
	ProximityAlert *ProximityAlertPayload `json:"proximity_alert,omitempty"`
}

// subscriberBuffer is the per-subscriber channel depth. Publishing never
// blocks; events beyond a stalled subscriber's buffer are dropped.
const subscriberBuffer = 64

// Bus fans events out to subscribers. All methods are safe for concurrent
// use.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its event channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish stamps the event time if unset and delivers the event to every
// subscriber without blocking. A subscriber whose buffer is full misses the
// event.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("event dropped for slow subscriber", "kind", ev.Kind, "subscriber", id)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
