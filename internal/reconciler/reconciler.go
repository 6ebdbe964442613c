// internal/reconciler/reconciler.go
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"thellex-wallet/internal/audit"
	"thellex-wallet/internal/domain"
	"thellex-wallet/internal/metrics"
	"thellex-wallet/internal/notify"
	"thellex-wallet/internal/repository"
	"thellex-wallet/internal/syncer"
	"thellex-wallet/internal/util"
	"thellex-wallet/pkg/db"
)

// Outcome classifies what applying one event did to the ledger.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeAdvanced      Outcome = "advanced"
	OutcomeCompleted     Outcome = "completed"
	OutcomeFailed        Outcome = "failed"
	OutcomeLimitRejected Outcome = "limit_rejected"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeOutOfOrder    Outcome = "out_of_order"
	OutcomeDropped       Outcome = "dropped"
)

// Reconciler is the per-transaction state machine. All event sources, the
// provider webhooks and the settlement scheduler alike, feed the same Apply
// entry point; there is no second state machine.
type Reconciler struct {
	dbBeginner db.DBTxBeginner
	dbExecutor repository.DBExecutor
	userRepo   repository.UserRepository
	walletRepo repository.WalletRepository
	txRepo     repository.TransactionRepository
	beginTx    db.BeginTxFunc
	commitTx   db.CommitTxFunc
	rollbackTx db.RollbackTxFunc

	limits   *LimitChecker
	syncer   *syncer.BalanceSyncer
	notifier notify.Notifier
	trail    audit.Trail
	metrics  *metrics.Metrics
	logger   *slog.Logger

	fiatAssets map[string]bool
}

// NewReconciler wires the state machine over its collaborators.
func NewReconciler(
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	userRepo repository.UserRepository,
	walletRepo repository.WalletRepository,
	txRepo repository.TransactionRepository,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	limits *LimitChecker,
	balanceSyncer *syncer.BalanceSyncer,
	notifier notify.Notifier,
	trail audit.Trail,
	m *metrics.Metrics,
	logger *slog.Logger,
	fiatAssets []string,
) *Reconciler {
	fiat := make(map[string]bool, len(fiatAssets))
	for _, a := range fiatAssets {
		fiat[a] = true
	}
	return &Reconciler{
		dbBeginner: dbBeginner,
		dbExecutor: dbExecutor,
		userRepo:   userRepo,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		beginTx:    beginTx,
		commitTx:   commitTx,
		rollbackTx: rollbackTx,
		limits:     limits,
		syncer:     balanceSyncer,
		notifier:   notifier,
		trail:      trail,
		metrics:    m,
		logger:     logger,
		fiatAssets: fiat,
	}
}

// Apply advances the transaction identified by the event. It is safe to call
// concurrently for the same external identity: creation races resolve through
// the unique index, transition races through the compare-and-swap on
// payment_status, and the loser observes a benign no-op.
func (r *Reconciler) Apply(ctx context.Context, ev *domain.TransactionEvent) (Outcome, error) {
	txn, err := r.txRepo.GetByExternalID(ctx, r.dbExecutor, ev.ProviderID, ev.ExternalTransactionID)
	if err != nil {
		if !errors.Is(err, util.ErrNotFound) {
			return OutcomeDropped, fmt.Errorf("apply: failed to load transaction %s/%s: %w",
				ev.ProviderID, ev.ExternalTransactionID, err)
		}
		outcome, created, cerr := r.createFromEvent(ctx, ev)
		if cerr != nil {
			return outcome, cerr
		}
		if outcome == OutcomeLimitRejected {
			return outcome, nil
		}
		txn = created
	}

	return r.advance(ctx, txn, ev)
}

// createFromEvent takes the first-seen path: attribute the event to a wallet
// and user, enforce outbound tier limits, and insert the OBSERVED record.
// A unique-index violation on insert means a concurrent delivery won the
// creation race; the caller falls through to the advance path.
func (r *Reconciler) createFromEvent(ctx context.Context, ev *domain.TransactionEvent) (Outcome, *domain.Transaction, error) {
	txController, err := r.beginTx(ctx, r.dbBeginner)
	if err != nil {
		return OutcomeDropped, nil, fmt.Errorf("create: failed to begin transaction: %w", err)
	}
	defer r.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return OutcomeDropped, nil, fmt.Errorf("create: transaction controller does not implement DBExecutor")
	}

	wallet, err := r.resolveWallet(ctx, txExecutor, ev)
	if err != nil {
		r.dropEvent(ctx, ev, "normalization", err.Error())
		return OutcomeDropped, nil, err
	}

	user, err := r.userRepo.GetUserByID(ctx, txExecutor, wallet.UserID)
	if err != nil {
		return OutcomeDropped, nil, fmt.Errorf("create: failed to load user %d: %w", wallet.UserID, err)
	}

	txn := domain.NewTransaction(ev, r.classify(ev), wallet.ID, user.ID)

	if ev.Direction == domain.DirectionOutbound {
		if limitErr := r.limits.CheckOutbound(ctx, txExecutor, user, ev.AssetCode, ev.Amount); limitErr != nil {
			if !errors.Is(limitErr, util.ErrLimitExceeded) {
				return OutcomeDropped, nil, limitErr
			}
			// Routed to FAILED, never clamped. The record still exists so
			// the rejection is auditable and the user is told why.
			reason := limitErr.Error()
			txn.PaymentStatus = domain.PaymentStatusFailed
			txn.FailureReason = &reason
			if err := r.txRepo.CreateTransaction(ctx, txExecutor, txn); err != nil {
				if errors.Is(err, util.ErrDuplicateEntry) {
					return r.reloadAfterRace(ctx, ev)
				}
				return OutcomeDropped, nil, fmt.Errorf("create: failed to record limit rejection: %w", err)
			}
			if err := r.commitTx(txController); err != nil {
				return OutcomeDropped, nil, fmt.Errorf("create: failed to commit limit rejection: %w", err)
			}
			r.metrics.DroppedEventsTotal.WithLabelValues("limit_exceeded").Inc()
			r.metrics.TransitionsTotal.WithLabelValues(string(domain.PaymentStatusFailed)).Inc()
			r.trail.Record(ctx, audit.DroppedEvent{
				Provider:        ev.ProviderID,
				ExternalEventID: ev.ExternalEventID,
				ExternalTxID:    ev.ExternalTransactionID,
				Reason:          "limit_exceeded",
				Detail:          reason,
			})
			r.dispatch(txn, notify.KindPaymentFailed, reason)
			return OutcomeLimitRejected, txn, nil
		}
	}

	if err := r.txRepo.CreateTransaction(ctx, txExecutor, txn); err != nil {
		if errors.Is(err, util.ErrDuplicateEntry) {
			return r.reloadAfterRace(ctx, ev)
		}
		return OutcomeDropped, nil, fmt.Errorf("create: failed to create transaction: %w", err)
	}
	if err := r.commitTx(txController); err != nil {
		return OutcomeDropped, nil, fmt.Errorf("create: failed to commit transaction: %w", err)
	}

	r.metrics.TransitionsTotal.WithLabelValues(string(domain.PaymentStatusObserved)).Inc()
	r.logger.Info("transaction observed",
		"transaction_id", txn.ID, "provider", ev.ProviderID,
		"external_tx_id", ev.ExternalTransactionID, "direction", ev.Direction)
	return OutcomeCreated, txn, nil
}

// reloadAfterRace handles losing the creation race: the unique-constraint
// violation is a benign "already handled" signal, so re-read the winner's row
// and let the advance path judge the event.
func (r *Reconciler) reloadAfterRace(ctx context.Context, ev *domain.TransactionEvent) (Outcome, *domain.Transaction, error) {
	txn, err := r.txRepo.GetByExternalID(ctx, r.dbExecutor, ev.ProviderID, ev.ExternalTransactionID)
	if err != nil {
		return OutcomeDropped, nil, fmt.Errorf("create: lost creation race but reload failed for %s/%s: %w",
			ev.ProviderID, ev.ExternalTransactionID, err)
	}
	return OutcomeCreated, txn, nil
}

// advance drives the state machine from the transaction's current status
// toward the event's target status, comparing positions in the state
// lattice rather than event timestamps: providers do not guarantee delivery
// order, so an event may only ever move a transaction forward.
func (r *Reconciler) advance(ctx context.Context, txn *domain.Transaction, ev *domain.TransactionEvent) (Outcome, error) {
	target := ev.Status.TargetPaymentStatus()

	if txn.PaymentStatus == target {
		// Redelivered terminal (or same-state) report: the guard catches
		// first-seen duplicates, this catches already-advanced ones whose
		// event id differed but whose transaction did not.
		r.metrics.DroppedEventsTotal.WithLabelValues("duplicate").Inc()
		r.logger.Info("duplicate status report ignored",
			"transaction_id", txn.ID, "status", txn.PaymentStatus)
		return OutcomeDuplicate, nil
	}

	if !txn.PaymentStatus.CanAdvanceTo(target) {
		r.metrics.DroppedEventsTotal.WithLabelValues("out_of_order").Inc()
		r.logger.Warn("out-of-order transition discarded",
			"transaction_id", txn.ID, "current", txn.PaymentStatus, "target", target,
			"provider", ev.ProviderID, "external_event_id", ev.ExternalEventID)
		r.trail.Record(ctx, audit.DroppedEvent{
			Provider:        ev.ProviderID,
			ExternalEventID: ev.ExternalEventID,
			ExternalTxID:    ev.ExternalTransactionID,
			Reason:          "out_of_order",
			Detail:          fmt.Sprintf("current=%s target=%s", txn.PaymentStatus, target),
		})
		return OutcomeOutOfOrder, nil
	}

	var failureReason *string
	if target == domain.PaymentStatusFailed {
		reason := fmt.Sprintf("provider %s reported terminal failure", ev.ProviderID)
		failureReason = &reason
	}

	swapped, err := r.txRepo.AdvanceStatus(ctx, r.dbExecutor, txn.ID, txn.PaymentStatus, target, failureReason)
	if err != nil {
		return OutcomeDropped, fmt.Errorf("advance: CAS %s -> %s for transaction %s: %w",
			txn.PaymentStatus, target, txn.ID, err)
	}
	if !swapped {
		// A concurrent transition won the race. Rejecting the loser is the
		// designed resolution; the winner's state stands.
		r.metrics.DroppedEventsTotal.WithLabelValues("out_of_order").Inc()
		r.logger.Warn("transition lost compare-and-swap race",
			"transaction_id", txn.ID, "expected", txn.PaymentStatus, "target", target)
		return OutcomeOutOfOrder, nil
	}

	r.metrics.TransitionsTotal.WithLabelValues(string(target)).Inc()
	r.logger.Info("transaction advanced",
		"transaction_id", txn.ID, "from", txn.PaymentStatus, "to", target)
	txn.PaymentStatus = target

	switch target {
	case domain.PaymentStatusComplete:
		// Balance sync is the last step, strictly after the durable status
		// commit and with no row lock held: a crash here leaves a COMPLETE
		// transaction with a stale balance row, which the sweep repairs.
		if _, err := r.syncer.Sync(ctx, txn.WalletID, txn.AssetCode); err != nil {
			r.logger.Error("balance sync failed after completion; sweep will repair",
				"transaction_id", txn.ID, "wallet_id", txn.WalletID, "error", err)
		}
		r.dispatch(txn, notify.KindPaymentCompleted, "")
		return OutcomeCompleted, nil
	case domain.PaymentStatusFailed:
		r.dispatch(txn, notify.KindPaymentFailed, derefOrEmpty(failureReason))
		return OutcomeFailed, nil
	}
	return OutcomeAdvanced, nil
}

// RepairUnsynced is the reconciliation sweep for the crash gap between
// "transaction marked COMPLETE" and "balance synced". It re-runs the balance
// synchronizer for every COMPLETE transaction whose balance row predates it.
func (r *Reconciler) RepairUnsynced(ctx context.Context, limit int) (int, error) {
	stale, err := r.txRepo.ListUnsyncedComplete(ctx, r.dbExecutor, limit)
	if err != nil {
		return 0, fmt.Errorf("repair: failed to list unsynced transactions: %w", err)
	}
	repaired := 0
	for i := range stale {
		txn := &stale[i]
		if _, err := r.syncer.Sync(ctx, txn.WalletID, txn.AssetCode); err != nil {
			r.logger.Error("repair sync failed",
				"transaction_id", txn.ID, "wallet_id", txn.WalletID, "error", err)
			continue
		}
		repaired++
	}
	return repaired, nil
}

// resolveWallet attributes an event to the custodial wallet it concerns:
// the destination address for inbound flows, the source for outbound.
func (r *Reconciler) resolveWallet(ctx context.Context, q repository.DBExecutor, ev *domain.TransactionEvent) (*domain.Wallet, error) {
	var ref *string
	if ev.Direction == domain.DirectionInbound {
		ref = ev.DestinationAddress
	} else {
		ref = ev.SourceAddress
	}
	if ref == nil || *ref == "" {
		return nil, fmt.Errorf("%w: event %s/%s carries no wallet reference",
			util.ErrInvalidInput, ev.ProviderID, ev.ExternalEventID)
	}
	wallet, err := r.walletRepo.GetWalletByAccountRef(ctx, q, ev.ProviderID, *ref)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return nil, fmt.Errorf("%w: no wallet for %s account %s", util.ErrWalletNotFound, ev.ProviderID, *ref)
		}
		return nil, fmt.Errorf("failed to resolve wallet for %s/%s: %w", ev.ProviderID, *ref, err)
	}
	return wallet, nil
}

// classify derives the canonical transaction type from direction and asset
// class. Ramp legs (fiat↔crypto) are the fiat-denominated flows.
func (r *Reconciler) classify(ev *domain.TransactionEvent) domain.TransactionType {
	fiat := r.fiatAssets[ev.AssetCode]
	switch {
	case ev.Direction == domain.DirectionInbound && fiat:
		return domain.TransactionTypeFiatToCrypto
	case ev.Direction == domain.DirectionInbound:
		return domain.TransactionTypeCryptoDeposit
	case fiat:
		return domain.TransactionTypeCryptoToFiat
	default:
		return domain.TransactionTypeCryptoWithdrawal
	}
}

// dispatch emits the user notification fire-and-forget: delivery failure must
// never roll back or block a committed ledger transition.
func (r *Reconciler) dispatch(txn *domain.Transaction, kind notify.Kind, reason string) {
	ev := notify.Event{
		UserID:        txn.UserID,
		Kind:          kind,
		TransactionID: txn.ID,
		AssetCode:     txn.AssetCode,
		Amount:        txn.Amount.String(),
		Reason:        reason,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.notifier.Notify(ctx, ev); err != nil {
			r.metrics.NotificationsTotal.WithLabelValues(string(kind), "error").Inc()
			r.logger.Error("notification dispatch failed",
				"transaction_id", txn.ID, "kind", kind, "error", err)
			return
		}
		r.metrics.NotificationsTotal.WithLabelValues(string(kind), "ok").Inc()
	}()
}

// dropEvent records an unprocessable event for audit before discarding it.
func (r *Reconciler) dropEvent(ctx context.Context, ev *domain.TransactionEvent, reason, detail string) {
	r.metrics.DroppedEventsTotal.WithLabelValues(reason).Inc()
	r.trail.Record(ctx, audit.DroppedEvent{
		Provider:        ev.ProviderID,
		ExternalEventID: ev.ExternalEventID,
		ExternalTxID:    ev.ExternalTransactionID,
		Reason:          reason,
		Detail:          detail,
		RawPayload:      ev.RawPayload,
	})
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
