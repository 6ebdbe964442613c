// internal/repository/postgres/wallet_pg.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"thellex-wallet/internal/domain"
	"thellex-wallet/internal/repository"
	"thellex-wallet/internal/util"
)

// WalletRepository implements repository.WalletRepository for PostgreSQL.
type WalletRepository struct {
	// Methods receive a DBExecutor directly; no connection is held here.
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db *sqlx.DB) repository.WalletRepository {
	return &WalletRepository{}
}

// CreateWallet inserts a new wallet into the database using the provided DBExecutor.
func (r *WalletRepository) CreateWallet(ctx context.Context, q repository.DBExecutor, wallet *domain.Wallet) error {
	query := `INSERT INTO wallets (user_id, provider, account_ref, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := q.QueryRowContext(ctx, query, wallet.UserID, wallet.Provider, wallet.AccountRef, wallet.CreatedAt, wallet.UpdatedAt).Scan(&wallet.ID)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// GetWalletByID retrieves a wallet by its ID using the provided DBExecutor.
func (r *WalletRepository) GetWalletByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT id, user_id, provider, account_ref, created_at, updated_at FROM wallets WHERE id = $1`
	err := q.GetContext(ctx, &wallet, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet by ID %d: %w", id, err)
	}
	return &wallet, nil
}

// GetWalletByAccountRef resolves the wallet owning a provider account or
// deposit address.
func (r *WalletRepository) GetWalletByAccountRef(ctx context.Context, q repository.DBExecutor, provider, accountRef string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT id, user_id, provider, account_ref, created_at, updated_at
              FROM wallets WHERE provider = $1 AND account_ref = $2`
	err := q.GetContext(ctx, &wallet, query, provider, accountRef)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet by account ref %s/%s: %w", provider, accountRef, err)
	}
	return &wallet, nil
}

// GetAssetBalance retrieves one asset balance row for a wallet.
func (r *WalletRepository) GetAssetBalance(ctx context.Context, q repository.DBExecutor, walletID int64, assetCode string) (*domain.AssetBalance, error) {
	var balance domain.AssetBalance
	query := `SELECT wallet_id, asset_code, balance, synced_at
              FROM asset_balances WHERE wallet_id = $1 AND asset_code = $2`
	err := q.GetContext(ctx, &balance, query, walletID, assetCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s balance for wallet %d: %w", assetCode, walletID, err)
	}
	return &balance, nil
}

// SetAssetBalance overwrites a wallet's balance for one asset with the
// provider's authoritative value. Balances are never adjusted by deltas;
// webhook payloads do not reliably reflect the provider's settled state.
func (r *WalletRepository) SetAssetBalance(ctx context.Context, q repository.DBExecutor, walletID int64, assetCode string, balance decimal.Decimal) error {
	now := time.Now().UTC()
	query := `INSERT INTO asset_balances (wallet_id, asset_code, balance, synced_at)
              VALUES ($1, $2, $3, $4)
              ON CONFLICT (wallet_id, asset_code)
              DO UPDATE SET balance = EXCLUDED.balance, synced_at = EXCLUDED.synced_at`
	_, err := q.ExecContext(ctx, query, walletID, assetCode, balance, now)
	if err != nil {
		return fmt.Errorf("failed to set %s balance for wallet %d: %w", assetCode, walletID, err)
	}

	touch := `UPDATE wallets SET updated_at = $1 WHERE id = $2`
	if _, err := q.ExecContext(ctx, touch, now, walletID); err != nil {
		return fmt.Errorf("failed to touch wallet %d after balance sync: %w", walletID, err)
	}
	return nil
}
