// internal/provider/quidax.go
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"thellex-wallet/internal/util"
)

// QuidaxClient talks to the exchange provider's sub-account REST API.
type QuidaxClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewQuidaxClient creates a client for the given API base URL.
func NewQuidaxClient(baseURL, apiKey string) *QuidaxClient {
	return &QuidaxClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (c *QuidaxClient) ID() string { return IDQuidax }

type quidaxWithdrawal struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
	Fee       string `json:"fee"`
	Currency  string `json:"currency"`
	TxID      string `json:"txid"`
	CreatedAt string `json:"created_at"`
}

type quidaxWithdrawalEnvelope struct {
	Status string           `json:"status"`
	Data   quidaxWithdrawal `json:"data"`
}

// GetTransaction fetches the provider's current view of one withdrawal.
func (c *QuidaxClient) GetTransaction(ctx context.Context, externalID string) (*Txn, error) {
	var envelope quidaxWithdrawalEnvelope
	url := fmt.Sprintf("%s/api/v1/users/me/withdraws/%s", c.baseURL, externalID)
	if err := doJSON(ctx, c.http, http.MethodGet, url, c.apiKey, nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data.ID == "" {
		return nil, fmt.Errorf("%w: withdrawal %s", util.ErrNotFound, externalID)
	}
	return c.toTxn(envelope.Data)
}

type quidaxWalletEnvelope struct {
	Status string `json:"status"`
	Data   struct {
		Currency string `json:"currency"`
		Balance  string `json:"balance"`
	} `json:"data"`
}

// GetBalance reads the sub-account's authoritative balance for one currency.
func (c *QuidaxClient) GetBalance(ctx context.Context, walletRef, assetCode string) (decimal.Decimal, error) {
	var envelope quidaxWalletEnvelope
	url := fmt.Sprintf("%s/api/v1/users/%s/wallets/%s", c.baseURL, walletRef, assetCode)
	if err := doJSON(ctx, c.http, http.MethodGet, url, c.apiKey, nil, &envelope); err != nil {
		return decimal.Zero, err
	}
	balance, err := decimal.NewFromString(envelope.Data.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable balance %q for account %s: %w", envelope.Data.Balance, walletRef, err)
	}
	return balance, nil
}

type quidaxWithdrawRequest struct {
	Currency      string `json:"currency"`
	Amount        string `json:"amount"`
	FundUID       string `json:"fund_uid"`
	TransactionID string `json:"transaction_note"`
}

// InitiatePayout submits a withdrawal from the sub-account.
func (c *QuidaxClient) InitiatePayout(ctx context.Context, req PayoutRequest) (*Txn, error) {
	body := quidaxWithdrawRequest{
		Currency:      req.AssetCode,
		Amount:        req.Amount.String(),
		FundUID:       req.Destination,
		TransactionID: req.Reference,
	}

	var envelope quidaxWithdrawalEnvelope
	url := fmt.Sprintf("%s/api/v1/users/%s/withdraws", c.baseURL, req.WalletRef)
	if err := doJSON(ctx, c.http, http.MethodPost, url, c.apiKey, body, &envelope); err != nil {
		return nil, err
	}
	return c.toTxn(envelope.Data)
}

func (c *QuidaxClient) toTxn(w quidaxWithdrawal) (*Txn, error) {
	amount := decimal.Zero
	if w.Amount != "" {
		parsed, err := decimal.NewFromString(w.Amount)
		if err != nil {
			return nil, fmt.Errorf("unparseable amount %q for withdrawal %s: %w", w.Amount, w.ID, err)
		}
		amount = parsed
	}
	fee := decimal.Zero
	if w.Fee != "" {
		parsed, err := decimal.NewFromString(w.Fee)
		if err != nil {
			return nil, fmt.Errorf("unparseable fee %q for withdrawal %s: %w", w.Fee, w.ID, err)
		}
		fee = parsed
	}
	occurredAt := time.Now().UTC()
	if w.CreatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, w.CreatedAt); err == nil {
			occurredAt = parsed.UTC()
		}
	}
	return &Txn{
		ExternalID:   w.ID,
		Status:       w.Status,
		Amount:       amount,
		Fee:          fee,
		AssetCode:    w.Currency,
		BlockchainTx: w.TxID,
		OccurredAt:   occurredAt,
	}, nil
}
