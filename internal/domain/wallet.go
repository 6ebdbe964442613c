// internal/domain/wallet.go
package domain

import (
	"time"

	"github.com/shopspring/decimal" // For precise monetary calculations
)

// Wallet represents a user's custodial wallet at a single provider. Balances
// are written only by the balance synchronizer from the provider's
// authoritative read, never by delta arithmetic on event amounts.
type Wallet struct {
	ID         int64     `db:"id" json:"id"` // Primary key, BIGSERIAL in DB
	UserID     int64     `db:"user_id" json:"user_id"`
	Provider   string    `db:"provider" json:"provider"`       // custody provider owning the account
	AccountRef string    `db:"account_ref" json:"account_ref"` // on-chain address or provider account id
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// AssetBalance is one row of a wallet's per-asset balance map.
type AssetBalance struct {
	WalletID  int64           `db:"wallet_id" json:"wallet_id"`
	AssetCode string          `db:"asset_code" json:"asset_code"`
	Balance   decimal.Decimal `db:"balance" json:"balance"` // NUMERIC(30, 10) in DB
	SyncedAt  time.Time       `db:"synced_at" json:"synced_at"`
}

// NewWallet creates a new Wallet instance.
func NewWallet(userID int64, provider, accountRef string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		UserID:     userID,
		Provider:   provider,
		AccountRef: accountRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
