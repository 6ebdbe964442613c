// internal/syncer/syncer.go
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"thellex-wallet/internal/metrics"
	"thellex-wallet/internal/provider"
	"thellex-wallet/internal/repository"
)

// DefaultProviderTimeout bounds the blocking balance read against the
// provider. The call never runs while a transaction row lock is held.
const DefaultProviderTimeout = 10 * time.Second

// BalanceSyncer refreshes a wallet's asset balance from the provider's
// authoritative read and writes it back. It never derives a balance from
// webhook payload deltas; payloads are not guaranteed to reflect the
// provider's fully-settled state at delivery time.
type BalanceSyncer struct {
	providers  provider.Registry
	walletRepo repository.WalletRepository
	db         repository.DBExecutor
	timeout    time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewBalanceSyncer creates a syncer over the provider registry.
func NewBalanceSyncer(providers provider.Registry, walletRepo repository.WalletRepository, db repository.DBExecutor, m *metrics.Metrics, logger *slog.Logger) *BalanceSyncer {
	return &BalanceSyncer{
		providers:  providers,
		walletRepo: walletRepo,
		db:         db,
		timeout:    DefaultProviderTimeout,
		metrics:    m,
		logger:     logger,
	}
}

// Sync re-fetches the authoritative balance for (walletID, assetCode) and
// persists it. Called after a COMPLETE transition has durably committed; a
// crash in between is repaired by the reconciliation sweep, which detects a
// COMPLETE transaction whose balance row predates it and re-invokes Sync.
func (s *BalanceSyncer) Sync(ctx context.Context, walletID int64, assetCode string) (decimal.Decimal, error) {
	wallet, err := s.walletRepo.GetWalletByID(ctx, s.db, walletID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sync: failed to load wallet %d: %w", walletID, err)
	}

	client, ok := s.providers.Get(wallet.Provider)
	if !ok {
		return decimal.Zero, fmt.Errorf("sync: no client registered for provider %q", wallet.Provider)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	balance, err := client.GetBalance(callCtx, wallet.AccountRef, assetCode)
	if err != nil {
		s.metrics.BalanceSyncsTotal.WithLabelValues("provider_error").Inc()
		return decimal.Zero, fmt.Errorf("sync: provider %s balance read for wallet %d: %w", wallet.Provider, walletID, err)
	}

	if err := s.walletRepo.SetAssetBalance(ctx, s.db, walletID, assetCode, balance); err != nil {
		s.metrics.BalanceSyncsTotal.WithLabelValues("store_error").Inc()
		return decimal.Zero, fmt.Errorf("sync: failed to persist %s balance for wallet %d: %w", assetCode, walletID, err)
	}

	s.metrics.BalanceSyncsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("wallet balance synchronized",
		"wallet_id", walletID, "asset", assetCode, "balance", balance.String())
	return balance, nil
}
