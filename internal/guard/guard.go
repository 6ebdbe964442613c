// internal/guard/guard.go
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"thellex-wallet/internal/repository"
	"thellex-wallet/internal/util"
	"thellex-wallet/pkg/clock"
)

// DefaultInFlightTTL bounds how long a delivery claim survives if its
// processing never releases it (crash, hung provider call). Providers retry
// within seconds, so minutes is ample.
const DefaultInFlightTTL = 5 * time.Minute

// Decision is the guard's verdict for one delivery.
type Decision int

const (
	// DecisionProcessNew: first durable observation of the transaction
	// identity; the reconciler takes the first-seen (create) path.
	DecisionProcessNew Decision = iota
	// DecisionAdvance: the transaction exists; the event may still move it
	// forward in the state lattice.
	DecisionAdvance
	// DecisionDuplicate: another delivery of the same event is in flight or
	// just completed; drop without touching the reconciler.
	DecisionDuplicate
)

// IdempotencyGuard decides, for a given external event identity, whether this
// is the first time it has been durably observed. The durable existence check
// against the transactions unique index is the correctness mechanism; the
// in-process TTL cache only collapses duplicate concurrent deliveries of the
// same webhook before they both reach the database.
type IdempotencyGuard struct {
	txRepo   repository.TransactionRepository
	db       repository.DBExecutor
	inFlight *TTLCache
	logger   *slog.Logger
}

// NewIdempotencyGuard creates a guard over the transaction store.
func NewIdempotencyGuard(txRepo repository.TransactionRepository, db repository.DBExecutor, clk clock.Clock, logger *slog.Logger) *IdempotencyGuard {
	return &IdempotencyGuard{
		txRepo:   txRepo,
		db:       db,
		inFlight: NewTTLCache(DefaultInFlightTTL, clk),
		logger:   logger,
	}
}

// Check claims the event delivery and classifies it.
//
// Fail-closed: if the durable check errors, the verdict is DecisionDuplicate
// ("do not process") plus a retryable error, so a transient store outage
// cannot cause duplicate ledger entries. The in-flight claim is released so
// the provider's retry can attempt again.
func (g *IdempotencyGuard) Check(ctx context.Context, providerID, externalEventID, externalTxID string) (Decision, error) {
	key := providerID + ":" + externalEventID

	if !g.inFlight.Add(key) {
		g.logger.Info("collapsed concurrent duplicate delivery",
			"provider", providerID, "external_event_id", externalEventID)
		return DecisionDuplicate, nil
	}

	exists, err := g.txRepo.ExistsByExternalID(ctx, g.db, providerID, externalTxID)
	if err != nil {
		g.inFlight.Remove(key)
		return DecisionDuplicate, fmt.Errorf("%w: idempotency check for %s: %v", util.ErrStoreUnavailable, key, err)
	}
	if exists {
		return DecisionAdvance, nil
	}
	return DecisionProcessNew, nil
}

// Release drops the in-flight claim once processing of the event has
// concluded. Claims for events that were fully processed are kept until TTL
// expiry so a fast provider retry is collapsed without a database round trip;
// callers release only on retryable failure.
func (g *IdempotencyGuard) Release(providerID, externalEventID string) {
	g.inFlight.Remove(providerID + ":" + externalEventID)
}
