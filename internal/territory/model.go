// Package territory provides territory synthesis from completed sessions and
// the claimed-territory repository.
package territory

import (
	"github.com/onnwee/turf/internal/geo"
)

// Rarity tiers, derived from difficulty.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// rewardMultiplier returns the reward multiplier for the rarity tier.
func (r Rarity) rewardMultiplier() float64 {
	switch r {
	case RarityRare:
		return 1.5
	case RarityEpic:
		return 2
	case RarityLegendary:
		return 3
	default:
		return 1
	}
}

// Status is a territory lifecycle status.
type Status string

const (
	StatusClaimable    Status = "claimable"
	StatusPendingClaim Status = "pending_claim"
	StatusClaimed      Status = "claimed"
	StatusContested    Status = "contested"
	StatusExpired      Status = "expired"
)

// Metadata is the synthesized, display-facing description of a territory.
// Derived deterministically from session statistics plus best-effort
// landmark lookup.
type Metadata struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Landmarks       []string `json:"landmarks"`
	Difficulty      float64  `json:"difficulty"` // 0-100
	Rarity          Rarity   `json:"rarity"`
	EstimatedReward float64  `json:"estimated_reward"`
}

// SessionSummary carries the statistics of the originating session without
// retaining its full sample history.
type SessionSummary struct {
	SessionID           string  `json:"session_id"`
	TotalDistanceMeters float64 `json:"total_distance_meters"`
	TotalDurationMs     int64   `json:"total_duration_ms"`
	AvgSpeedMps         float64 `json:"avg_speed_mps"`
	MaxSpeedMps         float64 `json:"max_speed_mps"`
	SegmentCount        int     `json:"segment_count"`
}

// SettlementRecord is one entry in a territory's settlement history. History
// is append-only; failed claims are preserved for inspection and retry.
type SettlementRecord struct {
	TransactionID string `json:"transaction_id"`
	NetworkID     string `json:"network_id"`
	Status        string `json:"status"`
	AtMs          int64  `json:"at_ms"`
	ErrorKind     string `json:"error_kind,omitempty"`
}

// Territory is a claimable entity synthesized from an eligible session. At
// most one territory may hold a given uniqueness key in claimed or
// pending_claim status at a time.
type Territory struct {
	ID                string             `json:"id"`
	UniquenessKey     string             `json:"uniqueness_key"`
	Bounds            geo.Bounds         `json:"bounds"`
	Metadata          Metadata           `json:"metadata"`
	SessionSummary    SessionSummary     `json:"session_summary"`
	Status            Status             `json:"status"`
	Owner             string             `json:"owner,omitempty"`
	ClaimedAtMs       int64              `json:"claimed_at_ms,omitempty"`
	NetworkID         string             `json:"network_id,omitempty"`
	IsCrossNetwork    bool               `json:"is_cross_network,omitempty"`
	SettlementHistory []SettlementRecord `json:"settlement_history,omitempty"`
}

// Clone returns a deep copy so callers never mutate repository state through
// a returned record.
func (t *Territory) Clone() Territory {
	out := *t
	out.Metadata.Landmarks = make([]string, len(t.Metadata.Landmarks))
	copy(out.Metadata.Landmarks, t.Metadata.Landmarks)
	out.SettlementHistory = make([]SettlementRecord, len(t.SettlementHistory))
	copy(out.SettlementHistory, t.SettlementHistory)
	return out
}
