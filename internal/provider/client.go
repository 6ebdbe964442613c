// internal/provider/client.go
package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifiers used across the system.
const (
	IDCircle = "circle"
	IDQuidax = "quidax"
)

// Txn is a provider's own view of a transaction, returned by lookups and
// payout submissions.
type Txn struct {
	ExternalID   string
	Status       string // provider-native status, normalized by the adapter
	Amount       decimal.Decimal
	Fee          decimal.Decimal
	AssetCode    string
	BlockchainTx string
	OccurredAt   time.Time
}

// PayoutRequest describes a settlement payout to submit to a provider.
type PayoutRequest struct {
	WalletRef   string
	AssetCode   string
	Amount      decimal.Decimal
	Destination string
	Reference   string // internal transaction id, echoed back by the provider
}

// Client is the boundary to one custody/payment provider. Implementations are
// thin HTTP wrappers; the reconciler treats every call as fallible, retryable
// and latent, and never invokes them while holding a transaction row lock.
type Client interface {
	ID() string
	GetTransaction(ctx context.Context, externalID string) (*Txn, error)
	GetBalance(ctx context.Context, walletRef, assetCode string) (decimal.Decimal, error)
	InitiatePayout(ctx context.Context, req PayoutRequest) (*Txn, error)
}

// Registry resolves a provider Client by id.
type Registry map[string]Client

// Get returns the client registered under id.
func (r Registry) Get(id string) (Client, bool) {
	c, ok := r[id]
	return c, ok
}
