// internal/repository/postgres/transaction_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"thellex-wallet/internal/domain"
	"thellex-wallet/internal/repository"
	"thellex-wallet/internal/util"
)

// uniqueViolation is the PostgreSQL error code for unique-constraint breaks.
const uniqueViolation = "23505"

// TransactionRepository implements repository.TransactionRepository for PostgreSQL.
type TransactionRepository struct {
	// Methods receive a DBExecutor directly; no connection is held here.
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db *sqlx.DB) repository.TransactionRepository {
	return &TransactionRepository{}
}

// CreateTransaction inserts a new transaction record. The
// (provider_id, external_tx_id) unique index is the durable idempotency
// backstop; its violation is mapped to util.ErrDuplicateEntry.
func (r *TransactionRepository) CreateTransaction(ctx context.Context, q repository.DBExecutor, t *domain.Transaction) error {
	query := `INSERT INTO transactions
              (id, provider_id, external_tx_id, direction, type, asset_code, amount, fee,
               payment_status, failure_reason, wallet_id, user_id, source_addr, dest_addr,
               blockchain_tx_id, settled_at, provider_meta, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := q.ExecContext(ctx, query,
		t.ID, t.ProviderID, t.ExternalTxID, t.Direction, t.Type, t.AssetCode,
		t.Amount, t.Fee, t.PaymentStatus, t.FailureReason, t.WalletID, t.UserID,
		t.SourceAddr, t.DestAddr, t.BlockchainTx, t.SettledAt, t.ProviderMeta,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return util.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

const transactionColumns = `id, provider_id, external_tx_id, direction, type, asset_code, amount, fee,
       payment_status, failure_reason, wallet_id, user_id, source_addr, dest_addr,
       blockchain_tx_id, settled_at, provider_meta, created_at, updated_at`

// prefixColumns qualifies every column in cols with a table alias for joins.
func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// GetByExternalID retrieves a transaction by its provider-scoped external id.
func (r *TransactionRepository) GetByExternalID(ctx context.Context, q repository.DBExecutor, providerID, externalTxID string) (*domain.Transaction, error) {
	var t domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE provider_id = $1 AND external_tx_id = $2`
	err := q.GetContext(ctx, &t, query, providerID, externalTxID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction %s/%s: %w", providerID, externalTxID, err)
	}
	return &t, nil
}

// ExistsByExternalID reports whether the external identity has been observed.
func (r *TransactionRepository) ExistsByExternalID(ctx context.Context, q repository.DBExecutor, providerID, externalTxID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM transactions WHERE provider_id = $1 AND external_tx_id = $2)`
	if err := q.GetContext(ctx, &exists, query, providerID, externalTxID); err != nil {
		return false, fmt.Errorf("failed to check transaction existence %s/%s: %w", providerID, externalTxID, err)
	}
	return exists, nil
}

// AdvanceStatus performs a compare-and-swap on payment_status. Zero rows
// affected means a concurrent transition won; the caller treats the event as
// out of order.
func (r *TransactionRepository) AdvanceStatus(ctx context.Context, q repository.DBExecutor, id string, expected, next domain.PaymentStatus, failureReason *string) (bool, error) {
	query := `UPDATE transactions
              SET payment_status = $1, failure_reason = COALESCE($2, failure_reason), updated_at = $3
              WHERE id = $4 AND payment_status = $5`
	result, err := q.ExecContext(ctx, query, next, failureReason, time.Now().UTC(), id, expected)
	if err != nil {
		return false, fmt.Errorf("failed to advance transaction %s to %s: %w", id, next, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for transaction %s: %w", id, err)
	}
	return rows == 1, nil
}

// SetSettlement attaches the settlement leg's blockchain reference.
func (r *TransactionRepository) SetSettlement(ctx context.Context, q repository.DBExecutor, id string, blockchainTxID *string, settledAt time.Time) error {
	query := `UPDATE transactions SET blockchain_tx_id = $1, settled_at = $2, updated_at = $3 WHERE id = $4`
	result, err := q.ExecContext(ctx, query, blockchainTxID, settledAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set settlement for transaction %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for transaction %s: %w", id, err)
	}
	if rows == 0 {
		return util.ErrNotFound
	}
	return nil
}

// SumCompletedOutboundSince sums completed outbound debits for the rolling
// daily ceiling check.
func (r *TransactionRepository) SumCompletedOutboundSince(ctx context.Context, q repository.DBExecutor, userID int64, assetCode string, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	query := `SELECT COALESCE(SUM(amount), 0)
              FROM transactions
              WHERE user_id = $1 AND asset_code = $2 AND direction = $3
                AND payment_status = $4 AND created_at >= $5`
	err := q.GetContext(ctx, &sum, query, userID, assetCode, domain.DirectionOutbound, domain.PaymentStatusComplete, since)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum outbound transactions for user %d: %w", userID, err)
	}
	return sum, nil
}

// ListStuck returns settlement candidates: non-terminal transactions of the
// given types older than the cutoff.
func (r *TransactionRepository) ListStuck(ctx context.Context, q repository.DBExecutor, types []domain.TransactionType, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	transactions := []domain.Transaction{}
	query := `SELECT ` + transactionColumns + `
              FROM transactions
              WHERE type = ANY($1) AND payment_status NOT IN ($2, $3) AND created_at < $4
              ORDER BY created_at ASC
              LIMIT $5`
	typeNames := make([]string, len(types))
	for i, t := range types {
		typeNames[i] = string(t)
	}
	err := q.SelectContext(ctx, &transactions, query,
		pq.Array(typeNames), domain.PaymentStatusComplete, domain.PaymentStatusFailed, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck transactions: %w", err)
	}
	return transactions, nil
}

// ListUnsyncedComplete finds COMPLETE transactions whose wallet's balance row
// for the transaction's asset was last synced before the transaction's own
// update, the signature of a crash between ledger commit and balance sync.
func (r *TransactionRepository) ListUnsyncedComplete(ctx context.Context, q repository.DBExecutor, limit int) ([]domain.Transaction, error) {
	transactions := []domain.Transaction{}
	query := `SELECT ` + prefixColumns("t", transactionColumns) + `
              FROM transactions t
              LEFT JOIN asset_balances b
                ON b.wallet_id = t.wallet_id AND b.asset_code = t.asset_code
              WHERE t.payment_status = $1
                AND (b.synced_at IS NULL OR b.synced_at < t.updated_at)
              ORDER BY t.updated_at ASC
              LIMIT $2`
	err := q.SelectContext(ctx, &transactions, query, domain.PaymentStatusComplete, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced complete transactions: %w", err)
	}
	return transactions, nil
}

// GetTransactionsByWalletID retrieves a paginated list of transactions for a
// specific wallet plus the total count.
func (r *TransactionRepository) GetTransactionsByWalletID(ctx context.Context, q repository.DBExecutor, walletID int64, limit, offset int) ([]domain.Transaction, int64, error) {
	transactions := []domain.Transaction{}
	query := `SELECT ` + transactionColumns + `
              FROM transactions
              WHERE wallet_id = $1
              ORDER BY created_at DESC
              LIMIT $2 OFFSET $3`
	err := q.SelectContext(ctx, &transactions, query, walletID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions for wallet %d: %w", walletID, err)
	}

	var totalCount int64
	countQuery := `SELECT COUNT(*) FROM transactions WHERE wallet_id = $1`
	err = q.GetContext(ctx, &totalCount, countQuery, walletID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get total transaction count for wallet %d: %w", walletID, err)
	}

	return transactions, totalCount, nil
}
