// internal/adapter/quidax.go
package adapter

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"thellex-wallet/internal/domain"
	"thellex-wallet/internal/provider"
)

// quidaxStatuses maps the exchange-wallet provider's status vocabulary onto
// the canonical set. The provider mixes casing across event types
// ("Done", "done", "DONE" are all observed in the wild), which the
// case-insensitive table absorbs.
var quidaxStatuses = statusTable{
	"ACCEPTED":   domain.CanonicalStatusAccepted,
	"SUBMITTED":  domain.CanonicalStatusAccepted,
	"PROCESSING": domain.CanonicalStatusProcessing,
	"CONFIRMED":  domain.CanonicalStatusProcessing,
	"DONE":       domain.CanonicalStatusComplete,
	"SUCCESSFUL": domain.CanonicalStatusComplete,
	"COMPLETED":  domain.CanonicalStatusComplete,
	"FAILED":     domain.CanonicalStatusFailed,
	"REJECTED":   domain.CanonicalStatusFailed,
	"CANCELLED":  domain.CanonicalStatusFailed,
}

// quidaxPayload is the typed shape of the exchange provider's webhook.
type quidaxPayload struct {
	Event string `json:"event"` // e.g. "deposit.successful", "withdraw.completed"
	Data  struct {
		ID        string `json:"id"`
		Type      string `json:"type"` // "deposit" | "withdraw"
		Status    string `json:"status"`
		Currency  string `json:"currency"`
		Amount    string `json:"amount"`
		Fee       string `json:"fee"`
		TxID      string `json:"txid"`
		CreatedAt string `json:"created_at"`
		Wallet    struct {
			DepositAddress *string `json:"deposit_address"`
		} `json:"wallet"`
		RecipientAddress *string `json:"recipient_address"`
	} `json:"data"`
}

// QuidaxAdapter normalizes webhooks from the exchange-wallet provider.
type QuidaxAdapter struct{}

func NewQuidaxAdapter() *QuidaxAdapter { return &QuidaxAdapter{} }

func (a *QuidaxAdapter) ProviderID() string { return provider.IDQuidax }

// Normalize translates a raw webhook body into a TransactionEvent.
func (a *QuidaxAdapter) Normalize(rawPayload []byte) (*domain.TransactionEvent, error) {
	var p quidaxPayload
	if err := json.Unmarshal(rawPayload, &p); err != nil {
		return nil, &NormalizationError{Provider: provider.IDQuidax, Field: "payload", Value: err.Error()}
	}
	if p.Data.ID == "" {
		return nil, &NormalizationError{Provider: provider.IDQuidax, Field: "data.id", Value: ""}
	}
	if p.Data.Currency == "" {
		return nil, &NormalizationError{Provider: provider.IDQuidax, Field: "data.currency", Value: ""}
	}

	status, err := quidaxStatuses.normalize(provider.IDQuidax, p.Data.Status)
	if err != nil {
		return nil, err
	}

	var direction domain.Direction
	switch strings.ToLower(strings.TrimSpace(p.Data.Type)) {
	case "deposit":
		direction = domain.DirectionInbound
	case "withdraw", "withdrawal":
		direction = domain.DirectionOutbound
	default:
		return nil, &NormalizationError{Provider: provider.IDQuidax, Field: "data.type", Value: p.Data.Type}
	}

	amount, err := decimal.NewFromString(p.Data.Amount)
	if err != nil {
		return nil, &NormalizationError{Provider: provider.IDQuidax, Field: "data.amount", Value: p.Data.Amount}
	}

	fee := decimal.Zero
	if p.Data.Fee != "" {
		fee, err = decimal.NewFromString(p.Data.Fee)
		if err != nil {
			return nil, &NormalizationError{Provider: provider.IDQuidax, Field: "data.fee", Value: p.Data.Fee}
		}
	}

	occurredAt := time.Now().UTC()
	if p.Data.CreatedAt != "" {
		parsed, err := time.Parse(time.RFC3339, p.Data.CreatedAt)
		if err != nil {
			return nil, &NormalizationError{Provider: provider.IDQuidax, Field: "data.created_at", Value: p.Data.CreatedAt}
		}
		occurredAt = parsed.UTC()
	}

	// The exchange provider reuses the transaction id as the event id and
	// disambiguates deliveries by the event name, so the pair forms the
	// dedup identity.
	eventID := p.Data.ID
	if p.Event != "" {
		eventID = p.Data.ID + ":" + p.Event
	}

	// The deposit address doubles as the custodial account reference: funds
	// arrive at it on deposits and leave from it on withdrawals.
	var source, dest *string
	if direction == domain.DirectionInbound {
		dest = p.Data.Wallet.DepositAddress
	} else {
		source = p.Data.Wallet.DepositAddress
		dest = p.Data.RecipientAddress
	}

	return &domain.TransactionEvent{
		ProviderID:            provider.IDQuidax,
		ExternalEventID:       eventID,
		ExternalTransactionID: p.Data.ID,
		Direction:             direction,
		AssetCode:             strings.ToUpper(strings.TrimSpace(p.Data.Currency)),
		Amount:                amount,
		FeeAmount:             fee,
		Status:                status,
		OccurredAt:            occurredAt,
		SourceAddress:         source,
		DestinationAddress:    dest,
		RawPayload:            rawPayload,
	}, nil
}
