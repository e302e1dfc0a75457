package claim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/turf/internal/events"
	"github.com/onnwee/turf/internal/territory"
	"github.com/onnwee/turf/internal/tracing"
)

// Config holds the orchestrator's cost and retention tunables.
type Config struct {
	// BaseCosts maps a network ID to its base claim cost.
	BaseCosts map[string]float64

	// FallbackCost is returned when no base cost is known for a network.
	// Cost estimates are advisory, never claim-blocking.
	FallbackCost float64

	// RetainTerminal is how long terminal transactions stay queryable
	// before SweepExpired discards them.
	RetainTerminal time.Duration

	// StalePendingAfter is the window after which a pending transaction is
	// surfaced as still pending. The ledger owns finality; the orchestrator
	// never auto-fails a pending claim.
	StalePendingAfter time.Duration
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		BaseCosts:         map[string]float64{},
		FallbackCost:      0.5,
		RetainTerminal:    5 * time.Minute,
		StalePendingAfter: 2 * time.Minute,
	}
}

// Orchestrator routes claims, tracks their transactions, and reconciles
// settlement callbacks. Correctness is keyed by transaction handle, so
// callbacks arriving after the user has moved on to another territory still
// land on the right record.
type Orchestrator struct {
	cfg       Config
	ledger    Ledger
	wallet    Wallet
	repo      territory.Repository
	validator Validator
	bus       *events.Bus
	metrics   *Metrics

	mu         sync.Mutex
	txByHandle map[string]*Transaction
	claiming   map[string]bool
}

// NewOrchestrator creates an orchestrator. The bus and metrics may be nil.
func NewOrchestrator(cfg Config, ledger Ledger, wallet Wallet, repo territory.Repository, validator Validator, bus *events.Bus, metrics *Metrics) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		ledger:     ledger,
		wallet:     wallet,
		repo:       repo,
		validator:  validator,
		bus:        bus,
		metrics:    metrics,
		txByHandle: make(map[string]*Transaction),
		claiming:   make(map[string]bool),
	}
}

// ResolveRoute decides the settlement path. A direct settlement call is only
// valid when already on the target network; anything else must go through a
// wallet network switch first.
func ResolveRoute(currentNetworkID, targetNetworkID string) Route {
	if currentNetworkID == targetNetworkID {
		return RouteDirect
	}
	return RouteCrossNetwork
}

// EstimateCost returns the advisory claim cost for a network: the
// per-network base cost times a complexity multiplier from the territory
// metadata. Unknown networks get the fallback constant; estimation never
// fails.
func (o *Orchestrator) EstimateCost(networkID string, md territory.Metadata) float64 {
	base, ok := o.cfg.BaseCosts[networkID]
	if !ok {
		return o.cfg.FallbackCost
	}
	multiplier := 1 + float64(len(md.Landmarks))*0.1 + md.Difficulty*0.01
	return base * multiplier
}

// SubmitClaim validates and submits a claim for the territory, targeting the
// given network. It returns the pending transaction immediately and never
// blocks for confirmation. Uniqueness is validated before any network call
// so a doomed claim costs no transaction.
func (o *Orchestrator) SubmitClaim(ctx context.Context, territoryID, targetNetworkID string) (tx Transaction, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "submit_claim",
		attribute.String("territory_id", territoryID),
		attribute.String("target_network", targetNetworkID))
	defer func() { endSpan(err) }()

	// One submission at a time per territory. The reservation covers the
	// whole claimable-to-pending transition so concurrent submitters cannot
	// both observe claimable.
	o.mu.Lock()
	if o.claiming[territoryID] {
		o.mu.Unlock()
		return Transaction{}, ErrClaimInProgress
	}
	o.claiming[territoryID] = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.claiming, territoryID)
		o.mu.Unlock()
	}()

	t, err := o.repo.Get(territoryID)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to load territory: %w", err)
	}
	switch t.Status {
	case territory.StatusClaimable:
	case territory.StatusPendingClaim:
		return Transaction{}, ErrClaimInProgress
	default:
		return Transaction{}, ErrTerritoryNotClaimable
	}

	if !o.ledger.IsReady() {
		return Transaction{}, ErrSettlementUnavailable
	}

	if err = o.validator.ValidateUniqueness(ctx, t.Bounds, t.UniquenessKey); err != nil {
		return Transaction{}, err
	}

	source := o.wallet.CurrentNetworkID()
	route := ResolveRoute(source, targetNetworkID)

	record := &Transaction{
		ID:              uuid.NewString(),
		TerritoryID:     t.ID,
		SourceNetworkID: source,
		TargetNetworkID: targetNetworkID,
		Route:           route,
		Status:          TxPending,
		Owner:           o.wallet.CurrentAccount(),
		SubmittedAtMs:   time.Now().UnixMilli(),
		CostEstimate:    o.EstimateCost(targetNetworkID, t.Metadata),
	}

	// The territory mirrors its active transaction from here on.
	t.Status = territory.StatusPendingClaim
	t.NetworkID = targetNetworkID
	t.IsCrossNetwork = route == RouteCrossNetwork
	t.SettlementHistory = append(t.SettlementHistory, territory.SettlementRecord{
		TransactionID: record.ID,
		NetworkID:     targetNetworkID,
		Status:        string(TxPending),
		AtMs:          record.SubmittedAtMs,
	})
	if err = o.repo.Update(t); err != nil {
		return Transaction{}, fmt.Errorf("failed to update territory: %w", err)
	}

	if route == RouteCrossNetwork {
		tracing.AddEvent(ctx, "network_switch",
			attribute.String("from", source),
			attribute.String("to", targetNetworkID))
		if switchErr := o.wallet.SwitchNetwork(ctx, targetNetworkID); switchErr != nil {
			// The transaction must not be left with no chance of progress:
			// it moves straight to failed and the territory reverts.
			o.failBeforeSubmit(t, record, ErrorKindSwitchRejected)
			return *record, fmt.Errorf("%w: %v", ErrNetworkSwitchRejected, switchErr)
		}
	}

	handle, submitErr := o.ledger.Submit(ctx, *t, targetNetworkID)
	if submitErr != nil {
		o.failBeforeSubmit(t, record, ErrorKindSubmitFailed)
		return *record, fmt.Errorf("claim submission failed: %w", submitErr)
	}
	record.Handle = handle

	o.mu.Lock()
	o.txByHandle[handle] = record
	o.mu.Unlock()

	o.metrics.claimSubmitted(string(route))
	o.publish(events.KindClaimSubmitted, record)

	slog.Info("claim submitted",
		"territory_id", t.ID,
		"transaction_id", record.ID,
		"route", route,
		"network", targetNetworkID,
	)
	return *record, nil
}

// OnConfirmed handles the asynchronous settlement confirmation for the given
// handle. Unknown or already-terminal handles are tolerated as duplicate
// notifications. The territory moves to claimed and never reverts.
func (o *Orchestrator) OnConfirmed(handle string) {
	o.mu.Lock()
	record, ok := o.txByHandle[handle]
	if !ok || record.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	record.Status = TxConfirmed
	record.SettledAtMs = time.Now().UnixMilli()
	tx := *record
	o.mu.Unlock()

	t, err := o.repo.Get(tx.TerritoryID)
	if err != nil {
		slog.Error("confirmed claim for unknown territory", "territory_id", tx.TerritoryID, "error", err)
		return
	}
	t.Status = territory.StatusClaimed
	t.Owner = tx.Owner
	t.ClaimedAtMs = tx.SettledAtMs
	t.SettlementHistory = append(t.SettlementHistory, territory.SettlementRecord{
		TransactionID: tx.ID,
		NetworkID:     tx.TargetNetworkID,
		Status:        string(TxConfirmed),
		AtMs:          tx.SettledAtMs,
	})
	if err := o.repo.Update(t); err != nil {
		slog.Error("failed to mark territory claimed", "territory_id", t.ID, "error", err)
		return
	}

	o.metrics.claimSettled(string(TxConfirmed), tx.SubmittedAtMs, tx.SettledAtMs)
	o.publish(events.KindClaimConfirmed, &tx)
}

// OnFailed handles the asynchronous settlement failure for the given handle.
// The territory reverts to claimable so the user may retry; its record and
// settlement history are preserved, never deleted.
func (o *Orchestrator) OnFailed(handle, errorKind string) {
	o.mu.Lock()
	record, ok := o.txByHandle[handle]
	if !ok || record.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	record.Status = TxFailed
	record.SettledAtMs = time.Now().UnixMilli()
	record.ErrorKind = errorKind
	tx := *record
	o.mu.Unlock()

	t, err := o.repo.Get(tx.TerritoryID)
	if err != nil {
		slog.Error("failed claim for unknown territory", "territory_id", tx.TerritoryID, "error", err)
		return
	}
	t.Status = territory.StatusClaimable
	t.SettlementHistory = append(t.SettlementHistory, territory.SettlementRecord{
		TransactionID: tx.ID,
		NetworkID:     tx.TargetNetworkID,
		Status:        string(TxFailed),
		AtMs:          tx.SettledAtMs,
		ErrorKind:     errorKind,
	})
	if err := o.repo.Update(t); err != nil {
		slog.Error("failed to revert territory", "territory_id", t.ID, "error", err)
		return
	}

	o.metrics.claimSettled(string(TxFailed), tx.SubmittedAtMs, tx.SettledAtMs)
	o.publish(events.KindClaimFailed, &tx)
}

// Transaction returns a copy of the transaction for the given handle.
func (o *Orchestrator) Transaction(handle string) (Transaction, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	record, ok := o.txByHandle[handle]
	if !ok {
		return Transaction{}, false
	}
	return *record, true
}

// StalePending returns copies of pending transactions older than the stale
// window. These are surfaced to the user as still pending; the ledger owns
// finality and the orchestrator only reflects what it is told.
func (o *Orchestrator) StalePending(now time.Time) []Transaction {
	o.mu.Lock()
	defer o.mu.Unlock()

	cutoff := now.Add(-o.cfg.StalePendingAfter).UnixMilli()
	var out []Transaction
	for _, record := range o.txByHandle {
		if record.Status == TxPending && record.SubmittedAtMs <= cutoff {
			out = append(out, *record)
		}
	}
	return out
}

// SweepExpired discards terminal transactions that have outlived the
// retention grace period. Returns the number removed.
func (o *Orchestrator) SweepExpired(now time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	cutoff := now.Add(-o.cfg.RetainTerminal).UnixMilli()
	removed := 0
	for handle, record := range o.txByHandle {
		if record.Status.Terminal() && record.SettledAtMs <= cutoff {
			delete(o.txByHandle, handle)
			removed++
		}
	}
	return removed
}

// failBeforeSubmit finalizes a transaction that never reached the ledger and
// reverts its territory to claimable.
func (o *Orchestrator) failBeforeSubmit(t *territory.Territory, record *Transaction, errorKind string) {
	record.Status = TxFailed
	record.SettledAtMs = time.Now().UnixMilli()
	record.ErrorKind = errorKind

	t.Status = territory.StatusClaimable
	t.SettlementHistory = append(t.SettlementHistory, territory.SettlementRecord{
		TransactionID: record.ID,
		NetworkID:     record.TargetNetworkID,
		Status:        string(TxFailed),
		AtMs:          record.SettledAtMs,
		ErrorKind:     errorKind,
	})
	if err := o.repo.Update(t); err != nil {
		slog.Error("failed to revert territory after failed submission", "territory_id", t.ID, "error", err)
	}

	o.metrics.claimSettled(string(TxFailed), record.SubmittedAtMs, record.SettledAtMs)
	o.publish(events.KindClaimFailed, record)
}

func (o *Orchestrator) publish(kind events.Kind, record *Transaction) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.Event{
		Kind: kind,
		Claim: &events.ClaimPayload{
			TransactionID: record.ID,
			TerritoryID:   record.TerritoryID,
			Route:         string(record.Route),
			NetworkID:     record.TargetNetworkID,
			ErrorKind:     record.ErrorKind,
		},
	})
}
