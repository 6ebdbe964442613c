// internal/provider/circle.go
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"thellex-wallet/internal/util"
)

// CircleClient talks to the developer-controlled wallet provider's REST API.
type CircleClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewCircleClient creates a client for the given API base URL.
func NewCircleClient(baseURL, apiKey string) *CircleClient {
	return &CircleClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (c *CircleClient) ID() string { return IDCircle }

type circleTxnEnvelope struct {
	Data struct {
		Transaction struct {
			ID          string   `json:"id"`
			State       string   `json:"state"`
			Amounts     []string `json:"amounts"`
			NetworkFee  string   `json:"networkFee"`
			TokenSymbol string   `json:"tokenSymbol"`
			TxHash      string   `json:"txHash"`
			CreateDate  string   `json:"createDate"`
		} `json:"transaction"`
	} `json:"data"`
}

// GetTransaction fetches the provider's current view of one transaction.
func (c *CircleClient) GetTransaction(ctx context.Context, externalID string) (*Txn, error) {
	var envelope circleTxnEnvelope
	url := fmt.Sprintf("%s/v1/w3s/transactions/%s", c.baseURL, externalID)
	if err := doJSON(ctx, c.http, http.MethodGet, url, c.apiKey, nil, &envelope); err != nil {
		return nil, err
	}

	txn := envelope.Data.Transaction
	if txn.ID == "" {
		return nil, fmt.Errorf("%w: transaction %s", util.ErrNotFound, externalID)
	}

	amount := decimal.Zero
	if len(txn.Amounts) > 0 {
		parsed, err := decimal.NewFromString(txn.Amounts[0])
		if err != nil {
			return nil, fmt.Errorf("unparseable amount %q for transaction %s: %w", txn.Amounts[0], externalID, err)
		}
		amount = parsed
	}
	fee := decimal.Zero
	if txn.NetworkFee != "" {
		parsed, err := decimal.NewFromString(txn.NetworkFee)
		if err != nil {
			return nil, fmt.Errorf("unparseable fee %q for transaction %s: %w", txn.NetworkFee, externalID, err)
		}
		fee = parsed
	}
	occurredAt := time.Now().UTC()
	if txn.CreateDate != "" {
		if parsed, err := time.Parse(time.RFC3339, txn.CreateDate); err == nil {
			occurredAt = parsed.UTC()
		}
	}

	return &Txn{
		ExternalID:   txn.ID,
		Status:       txn.State,
		Amount:       amount,
		Fee:          fee,
		AssetCode:    txn.TokenSymbol,
		BlockchainTx: txn.TxHash,
		OccurredAt:   occurredAt,
	}, nil
}

type circleBalanceEnvelope struct {
	Data struct {
		TokenBalances []struct {
			Token struct {
				Symbol string `json:"symbol"`
			} `json:"token"`
			Amount string `json:"amount"`
		} `json:"tokenBalances"`
	} `json:"data"`
}

// GetBalance reads the wallet's authoritative balance for one token.
func (c *CircleClient) GetBalance(ctx context.Context, walletRef, assetCode string) (decimal.Decimal, error) {
	var envelope circleBalanceEnvelope
	url := fmt.Sprintf("%s/v1/w3s/wallets/%s/balances?tokenSymbol=%s", c.baseURL, walletRef, assetCode)
	if err := doJSON(ctx, c.http, http.MethodGet, url, c.apiKey, nil, &envelope); err != nil {
		return decimal.Zero, err
	}

	for _, tb := range envelope.Data.TokenBalances {
		if tb.Token.Symbol != assetCode {
			continue
		}
		balance, err := decimal.NewFromString(tb.Amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("unparseable balance %q for wallet %s: %w", tb.Amount, walletRef, err)
		}
		return balance, nil
	}
	// No balance row for the token yet means a zero holding, not an error.
	return decimal.Zero, nil
}

type circleTransferRequest struct {
	IdempotencyKey     string   `json:"idempotencyKey"`
	WalletID           string   `json:"walletId"`
	DestinationAddress string   `json:"destinationAddress"`
	TokenSymbol        string   `json:"tokenSymbol"`
	Amounts            []string `json:"amounts"`
	RefID              string   `json:"refId"`
}

// InitiatePayout submits an outbound transfer. The idempotency key is derived
// from the internal transaction id so a retried submission cannot double-pay.
func (c *CircleClient) InitiatePayout(ctx context.Context, req PayoutRequest) (*Txn, error) {
	body := circleTransferRequest{
		IdempotencyKey:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.Reference)).String(),
		WalletID:           req.WalletRef,
		DestinationAddress: req.Destination,
		TokenSymbol:        req.AssetCode,
		Amounts:            []string{req.Amount.String()},
		RefID:              req.Reference,
	}

	var envelope circleTxnEnvelope
	url := fmt.Sprintf("%s/v1/w3s/developer/transactions/transfer", c.baseURL)
	if err := doJSON(ctx, c.http, http.MethodPost, url, c.apiKey, body, &envelope); err != nil {
		return nil, err
	}

	txn := envelope.Data.Transaction
	return &Txn{
		ExternalID:   txn.ID,
		Status:       txn.State,
		Amount:       req.Amount,
		AssetCode:    req.AssetCode,
		BlockchainTx: txn.TxHash,
		OccurredAt:   time.Now().UTC(),
	}, nil
}
