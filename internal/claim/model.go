// Package claim provides the claim orchestrator: it routes a territory claim
// to the correct settlement path, tracks the resulting transaction through
// its lifecycle, and reconciles asynchronous settlement notifications.
package claim

import (
	"context"
	"errors"

	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/territory"
)

var (
	// ErrSettlementUnavailable is returned when the settlement ledger is not
	// ready. The caller may retry at its discretion; the orchestrator never
	// auto-retries a claim.
	ErrSettlementUnavailable = errors.New("settlement ledger is not available")

	// ErrNetworkSwitchRejected is returned when the wallet refuses to switch
	// to the target network for a cross-network claim.
	ErrNetworkSwitchRejected = errors.New("network switch rejected by wallet")

	// ErrClaimInProgress is returned when a territory already has an active
	// claim transaction.
	ErrClaimInProgress = errors.New("territory already has a pending claim")

	// ErrTerritoryNotClaimable is returned when the territory's status does
	// not admit a new claim.
	ErrTerritoryNotClaimable = errors.New("territory is not claimable")
)

// Transaction error kinds recorded on failed claims.
const (
	ErrorKindSwitchRejected = "network_switch_rejected"
	ErrorKindSubmitFailed   = "submit_failed"
)

// Route is the settlement path chosen for a claim.
type Route string

const (
	// RouteDirect settles on the network the wallet is already on.
	RouteDirect Route = "direct"

	// RouteCrossNetwork requires a wallet network switch before settling.
	RouteCrossNetwork Route = "cross_network"
)

// TxStatus is a claim transaction state. Pending moves to exactly one of
// confirmed or failed; both are terminal.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// Terminal reports whether the transaction can change no further.
func (s TxStatus) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

// Transaction tracks one claim through settlement. Created by the
// orchestrator, mutated only by settlement-event handlers, and retained
// after its terminal state for a display grace period.
type Transaction struct {
	ID              string   `json:"id"`
	Handle          string   `json:"handle"`
	TerritoryID     string   `json:"territory_id"`
	SourceNetworkID string   `json:"source_network_id"`
	TargetNetworkID string   `json:"target_network_id"`
	Route           Route    `json:"route"`
	Status          TxStatus `json:"status"`
	Owner           string   `json:"owner,omitempty"`
	SubmittedAtMs   int64    `json:"submitted_at_ms"`
	SettledAtMs     int64    `json:"settled_at_ms,omitempty"`
	CostEstimate    float64  `json:"cost_estimate,omitempty"`
	ErrorKind       string   `json:"error_kind,omitempty"`
}

// Ledger is the settlement collaborator. Submission returns an opaque
// transaction handle immediately; finality arrives later through the
// orchestrator's OnConfirmed/OnFailed handlers.
type Ledger interface {
	KeyExists(ctx context.Context, key string) (bool, error)
	Submit(ctx context.Context, t territory.Territory, networkID string) (handle string, err error)
	IsReady() bool
}

// Wallet is the network/account collaborator.
type Wallet interface {
	CurrentNetworkID() string
	CurrentAccount() string
	SwitchNetwork(ctx context.Context, networkID string) error
}

// Validator checks a candidate against the claimed set before any network
// call. Implemented by the territory synthesizer.
type Validator interface {
	ValidateUniqueness(ctx context.Context, bounds geo.Bounds, key string) error
}
