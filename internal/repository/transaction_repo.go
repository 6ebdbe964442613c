// internal/repository/transaction_repo.go
package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"thellex-wallet/internal/domain"
)

// TransactionRepository defines the interface for transaction data operations.
type TransactionRepository interface {
	// CreateTransaction inserts a new transaction record. A violation of the
	// (provider_id, external_tx_id) unique index surfaces as
	// util.ErrDuplicateEntry so callers can treat it as "already handled".
	CreateTransaction(ctx context.Context, q DBExecutor, transaction *domain.Transaction) error
	// GetByExternalID retrieves a transaction by its provider-scoped external id.
	GetByExternalID(ctx context.Context, q DBExecutor, providerID, externalTxID string) (*domain.Transaction, error)
	// ExistsByExternalID reports whether a transaction for the given external
	// identity has been durably observed.
	ExistsByExternalID(ctx context.Context, q DBExecutor, providerID, externalTxID string) (bool, error)
	// AdvanceStatus moves payment_status from expected to next with a
	// compare-and-swap; it returns false when the observed status no longer
	// matches expected (a concurrent transition won the race).
	AdvanceStatus(ctx context.Context, q DBExecutor, id string, expected, next domain.PaymentStatus, failureReason *string) (bool, error)
	// SetSettlement attaches the blockchain/settlement reference after a payout.
	SetSettlement(ctx context.Context, q DBExecutor, id string, blockchainTxID *string, settledAt time.Time) error
	// SumCompletedOutboundSince sums a user's completed outbound amounts for a
	// given asset since the cutoff, for rolling daily limit checks.
	SumCompletedOutboundSince(ctx context.Context, q DBExecutor, userID int64, assetCode string, since time.Time) (decimal.Decimal, error)
	// ListStuck returns non-terminal transactions of the given types created
	// before the cutoff, candidates for scheduler-driven settlement.
	ListStuck(ctx context.Context, q DBExecutor, types []domain.TransactionType, olderThan time.Time, limit int) ([]domain.Transaction, error)
	// ListUnsyncedComplete returns COMPLETE transactions whose wallet balance
	// sync is older than the transaction's own update, for repair sweeps.
	ListUnsyncedComplete(ctx context.Context, q DBExecutor, limit int) ([]domain.Transaction, error)
	// GetTransactionsByWalletID retrieves paginated history for a wallet.
	GetTransactionsByWalletID(ctx context.Context, q DBExecutor, walletID int64, limit, offset int) ([]domain.Transaction, int64, error)
}
