// internal/scheduler/settlement.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"thellex-wallet/internal/adapter"
	"thellex-wallet/internal/domain"
	"thellex-wallet/internal/guard"
	"thellex-wallet/internal/metrics"
	"thellex-wallet/internal/provider"
	"thellex-wallet/internal/reconciler"
	"thellex-wallet/internal/repository"
	"thellex-wallet/pkg/clock"
)

// Config holds the settlement cadence. The direct class fires on a short
// period; the delayed class runs on a longer period and only considers
// transactions past a minimum age.
type Config struct {
	DirectInterval  time.Duration
	DelayedInterval time.Duration
	DelayedMinAge   time.Duration
	InFlightTTL     time.Duration
	BatchSize       int
}

// DefaultConfig mirrors the production cadence.
func DefaultConfig() Config {
	return Config{
		DirectInterval:  30 * time.Second,
		DelayedInterval: 5 * time.Minute,
		DelayedMinAge:   30 * time.Minute,
		InFlightTTL:     2 * time.Minute,
		BatchSize:       50,
	}
}

// directTypes settle as soon as they are detected stuck; delayedTypes wait
// out the minimum age window first.
var (
	directTypes  = []domain.TransactionType{domain.TransactionTypeCryptoToFiat}
	delayedTypes = []domain.TransactionType{domain.TransactionTypeFiatToCrypto, domain.TransactionTypeFiatTransfer}
)

// SettlementScheduler periodically scans for transactions stuck in
// non-terminal states and drives them forward by re-invoking the provider's
// payout operation. It is not a second state machine: every result is fed
// back through the same Reconciler the webhooks use.
type SettlementScheduler struct {
	cfg        Config
	reconciler *reconciler.Reconciler
	txRepo     repository.TransactionRepository
	userRepo   repository.UserRepository
	walletRepo repository.WalletRepository
	db         repository.DBExecutor
	providers  provider.Registry
	policy     domain.TierPolicy
	inFlight   *guard.TTLCache
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewSettlementScheduler wires the scheduler over its collaborators.
func NewSettlementScheduler(
	cfg Config,
	rec *reconciler.Reconciler,
	txRepo repository.TransactionRepository,
	userRepo repository.UserRepository,
	walletRepo repository.WalletRepository,
	db repository.DBExecutor,
	providers provider.Registry,
	policy domain.TierPolicy,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SettlementScheduler {
	return &SettlementScheduler{
		cfg:        cfg,
		reconciler: rec,
		txRepo:     txRepo,
		userRepo:   userRepo,
		walletRepo: walletRepo,
		db:         db,
		providers:  providers,
		policy:     policy,
		inFlight:   guard.NewTTLCache(cfg.InFlightTTL, clk),
		clock:      clk,
		metrics:    m,
		logger:     logger,
	}
}

// Run drives both settlement classes until ctx is cancelled.
func (s *SettlementScheduler) Run(ctx context.Context) {
	directTicker := time.NewTicker(s.cfg.DirectInterval)
	delayedTicker := time.NewTicker(s.cfg.DelayedInterval)
	defer directTicker.Stop()
	defer delayedTicker.Stop()

	s.logger.Info("settlement scheduler started",
		"direct_interval", s.cfg.DirectInterval, "delayed_interval", s.cfg.DelayedInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("settlement scheduler stopped")
			return
		case <-directTicker.C:
			s.RunDirectPass(ctx)
		case <-delayedTicker.C:
			s.RunDelayedPass(ctx)
		}
	}
}

// RunDirectPass settles stuck direct-class transactions regardless of age
// beyond the direct interval itself.
func (s *SettlementScheduler) RunDirectPass(ctx context.Context) {
	cutoff := s.clock.Now().Add(-s.cfg.DirectInterval)
	s.runPass(ctx, "direct", directTypes, cutoff)
}

// RunDelayedPass settles stuck delayed-class transactions older than the
// minimum age, then runs the balance repair sweep on the same cadence.
func (s *SettlementScheduler) RunDelayedPass(ctx context.Context) {
	cutoff := s.clock.Now().Add(-s.cfg.DelayedMinAge)
	s.runPass(ctx, "delayed", delayedTypes, cutoff)

	repaired, err := s.reconciler.RepairUnsynced(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("balance repair sweep failed", "error", err)
	} else if repaired > 0 {
		s.logger.Info("balance repair sweep completed", "repaired", repaired)
	}
}

func (s *SettlementScheduler) runPass(ctx context.Context, class string, types []domain.TransactionType, olderThan time.Time) {
	s.metrics.SchedulerLastRunUnix.Set(float64(s.clock.Now().Unix()))

	stuck, err := s.txRepo.ListStuck(ctx, s.db, types, olderThan, s.cfg.BatchSize)
	if err != nil {
		s.metrics.SchedulerRunsTotal.WithLabelValues(class, "error").Inc()
		s.logger.Error("failed to list stuck transactions", "class", class, "error", err)
		return
	}

	for i := range stuck {
		txn := &stuck[i]
		if err := s.settleOne(ctx, txn); err != nil {
			s.logger.Error("settlement attempt failed",
				"class", class, "transaction_id", txn.ID, "error", err)
		}
	}
	s.metrics.SchedulerRunsTotal.WithLabelValues(class, "ok").Inc()
}

// settleOne submits the payout for one stuck transaction and feeds the
// provider's answer back through the reconciler. The in-flight TTL set keeps
// a tick from re-submitting a payout whose previous attempt has not returned.
func (s *SettlementScheduler) settleOne(ctx context.Context, txn *domain.Transaction) error {
	if !s.inFlight.Add(txn.ID) {
		s.logger.Info("settlement already in flight, skipping", "transaction_id", txn.ID)
		return nil
	}
	defer s.inFlight.Remove(txn.ID)

	s.metrics.InFlightSettlements.Inc()
	defer s.metrics.InFlightSettlements.Dec()

	wallet, err := s.walletRepo.GetWalletByID(ctx, s.db, txn.WalletID)
	if err != nil {
		return fmt.Errorf("settle %s: failed to load wallet %d: %w", txn.ID, txn.WalletID, err)
	}
	user, err := s.userRepo.GetUserByID(ctx, s.db, txn.UserID)
	if err != nil {
		return fmt.Errorf("settle %s: failed to load user %d: %w", txn.ID, txn.UserID, err)
	}
	client, ok := s.providers.Get(txn.ProviderID)
	if !ok {
		return fmt.Errorf("settle %s: no client registered for provider %q", txn.ID, txn.ProviderID)
	}

	payout := txn.Amount
	if limit, ok := s.policy.Limit(user.Tier); ok && limit.SettlementFeeBps > 0 {
		payout = payout.Sub(domain.ApplyFeeBps(payout, limit.SettlementFeeBps))
	}

	result, err := client.InitiatePayout(ctx, provider.PayoutRequest{
		WalletRef:   wallet.AccountRef,
		AssetCode:   txn.AssetCode,
		Amount:      payout,
		Destination: derefOrEmpty(txn.DestAddr),
		Reference:   txn.ID,
	})
	if err != nil {
		// Timeouts and provider outages are retryable, not evidence of
		// payment failure. The next tick retries once the TTL clears.
		return fmt.Errorf("settle %s: payout submission: %w", txn.ID, err)
	}

	if result.BlockchainTx != "" {
		blockTx := result.BlockchainTx
		if err := s.txRepo.SetSettlement(ctx, s.db, txn.ID, &blockTx, s.clock.Now()); err != nil {
			s.logger.Error("failed to record settlement reference",
				"transaction_id", txn.ID, "error", err)
		}
	}

	status, err := adapter.NormalizeStatus(txn.ProviderID, result.Status)
	if err != nil {
		return fmt.Errorf("settle %s: payout returned unmappable status %q: %w", txn.ID, result.Status, err)
	}

	event := &domain.TransactionEvent{
		ProviderID:            txn.ProviderID,
		ExternalEventID:       txn.ExternalTxID + ":settlement:" + result.ExternalID,
		ExternalTransactionID: txn.ExternalTxID,
		Direction:             txn.Direction,
		AssetCode:             txn.AssetCode,
		Amount:                txn.Amount,
		FeeAmount:             result.Fee,
		Status:                status,
		OccurredAt:            s.clock.Now(),
		SourceAddress:         txn.SourceAddr,
		DestinationAddress:    txn.DestAddr,
	}

	outcome, err := s.reconciler.Apply(ctx, event)
	if err != nil {
		return fmt.Errorf("settle %s: reconcile payout result: %w", txn.ID, err)
	}
	s.logger.Info("settlement attempt reconciled",
		"transaction_id", txn.ID, "status", status, "outcome", outcome)
	return nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
