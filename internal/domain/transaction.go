// internal/domain/transaction.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal" // For precise monetary calculations
)

// TransactionType defines the type of a financial transaction.
type TransactionType string

const (
	TransactionTypeCryptoDeposit    TransactionType = "CRYPTO_DEPOSIT"
	TransactionTypeCryptoWithdrawal TransactionType = "CRYPTO_WITHDRAWAL"
	TransactionTypeFiatToCrypto     TransactionType = "FIAT_TO_CRYPTO_DEPOSIT"
	TransactionTypeCryptoToFiat     TransactionType = "CRYPTO_TO_FIAT_WITHDRAWAL"
	TransactionTypeFiatTransfer     TransactionType = "FIAT_TO_FIAT_TRANSFER"
)

// Direction indicates whether funds move into or out of the custodial wallet.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// PaymentStatus is the canonical lifecycle state of a transaction.
// Transitions only move forward along the lattice; COMPLETE and FAILED are
// terminal.
type PaymentStatus string

const (
	PaymentStatusObserved   PaymentStatus = "OBSERVED"
	PaymentStatusAccepted   PaymentStatus = "ACCEPTED"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusComplete   PaymentStatus = "COMPLETE"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// statusRank orders the forward lattice. FAILED is absorbing from any
// non-terminal state rather than ranked above COMPLETE, so it is handled
// separately in CanAdvanceTo.
var statusRank = map[PaymentStatus]int{
	PaymentStatusObserved:   0,
	PaymentStatusAccepted:   1,
	PaymentStatusProcessing: 2,
	PaymentStatusComplete:   3,
}

// IsTerminal reports whether no further transition is permitted from s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusComplete || s == PaymentStatusFailed
}

// CanAdvanceTo reports whether a transition from s to next moves the
// transaction forward in the state lattice. Equal or backward moves are
// rejected, as is any move out of a terminal state.
func (s PaymentStatus) CanAdvanceTo(next PaymentStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == PaymentStatusFailed {
		return true
	}
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	return nxt > cur
}

// Transaction is the durable, canonical ledger record. ExternalTxID is unique
// per provider; the database enforces this with a composite unique index, the
// idempotency guard is only a fast path.
type Transaction struct {
	ID            string          `db:"id" json:"id"` // UUID primary key
	ProviderID    string          `db:"provider_id" json:"provider_id"`
	ExternalTxID  string          `db:"external_tx_id" json:"external_tx_id"`
	Direction     Direction       `db:"direction" json:"direction"`
	Type          TransactionType `db:"type" json:"type"`
	AssetCode     string          `db:"asset_code" json:"asset_code"`
	Amount        decimal.Decimal `db:"amount" json:"amount"` // NUMERIC(30, 10) in DB
	Fee           decimal.Decimal `db:"fee" json:"fee"`
	PaymentStatus PaymentStatus   `db:"payment_status" json:"payment_status"`
	FailureReason *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	WalletID      int64           `db:"wallet_id" json:"wallet_id"`
	UserID        int64           `db:"user_id" json:"user_id"`
	SourceAddr    *string         `db:"source_addr" json:"source_addr,omitempty"`
	DestAddr      *string         `db:"dest_addr" json:"dest_addr,omitempty"`
	BlockchainTx  *string         `db:"blockchain_tx_id" json:"blockchain_tx_id,omitempty"`
	SettledAt     *time.Time      `db:"settled_at" json:"settled_at,omitempty"`
	ProviderMeta  []byte          `db:"provider_meta" json:"-"` // raw provider payload retained for audit
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// NewTransaction creates a first-seen Transaction from a normalized event.
func NewTransaction(ev *TransactionEvent, txType TransactionType, walletID, userID int64) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		ID:            uuid.NewString(),
		ProviderID:    ev.ProviderID,
		ExternalTxID:  ev.ExternalTransactionID,
		Direction:     ev.Direction,
		Type:          txType,
		AssetCode:     ev.AssetCode,
		Amount:        ev.Amount,
		Fee:           ev.FeeAmount,
		PaymentStatus: PaymentStatusObserved,
		WalletID:      walletID,
		UserID:        userID,
		SourceAddr:    ev.SourceAddress,
		DestAddr:      ev.DestinationAddress,
		ProviderMeta:  ev.RawPayload,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
