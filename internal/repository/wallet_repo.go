// internal/repository/wallet_repo.go
package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"thellex-wallet/internal/domain"
)

// WalletRepository defines the interface for wallet data operations.
type WalletRepository interface {
	// CreateWallet adds a new wallet to the database.
	CreateWallet(ctx context.Context, q DBExecutor, wallet *domain.Wallet) error
	// GetWalletByID retrieves a wallet by its ID.
	GetWalletByID(ctx context.Context, q DBExecutor, id int64) (*domain.Wallet, error)
	// GetWalletByAccountRef resolves the wallet owning a provider account or
	// deposit address.
	GetWalletByAccountRef(ctx context.Context, q DBExecutor, provider, accountRef string) (*domain.Wallet, error)
	// GetAssetBalance retrieves one asset balance row for a wallet.
	GetAssetBalance(ctx context.Context, q DBExecutor, walletID int64, assetCode string) (*domain.AssetBalance, error)
	// SetAssetBalance overwrites a wallet's balance for one asset with the
	// provider's authoritative value. It never adds deltas.
	SetAssetBalance(ctx context.Context, q DBExecutor, walletID int64, assetCode string, balance decimal.Decimal) error
}
