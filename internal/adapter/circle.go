// internal/adapter/circle.go
package adapter

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"thellex-wallet/internal/domain"
	"thellex-wallet/internal/provider"
)

// circleStatuses maps the developer-controlled wallet provider's transaction
// states onto the canonical vocabulary.
var circleStatuses = statusTable{
	"INITIATED": domain.CanonicalStatusAccepted,
	"QUEUED":    domain.CanonicalStatusAccepted,
	"ACCEPTED":  domain.CanonicalStatusAccepted,
	"SENT":      domain.CanonicalStatusProcessing,
	"CONFIRMED": domain.CanonicalStatusProcessing,
	"COMPLETE":  domain.CanonicalStatusComplete,
	"COMPLETED": domain.CanonicalStatusComplete,
	"FAILED":    domain.CanonicalStatusFailed,
	"CANCELLED": domain.CanonicalStatusFailed,
	"DENIED":    domain.CanonicalStatusFailed,
}

// circlePayload is the typed shape of the provider's webhook envelope. The
// payload is parsed at this boundary; malformed shapes are rejected here
// rather than propagated into business logic.
type circlePayload struct {
	NotificationID   string `json:"notificationId"`
	NotificationType string `json:"notificationType"`
	Transaction      struct {
		ID                 string  `json:"id"`
		State              string  `json:"state"`
		TransactionType    string  `json:"transactionType"`
		Amount             string  `json:"amount"`
		NetworkFee         string  `json:"networkFee"`
		TokenSymbol        string  `json:"tokenSymbol"`
		SourceAddress      *string `json:"sourceAddress"`
		DestinationAddress *string `json:"destinationAddress"`
		BlockchainTxHash   string  `json:"txHash"`
		CreateDate         string  `json:"createDate"`
	} `json:"transaction"`
}

// CircleAdapter normalizes webhooks from the EVM developer-controlled wallet
// provider.
type CircleAdapter struct{}

func NewCircleAdapter() *CircleAdapter { return &CircleAdapter{} }

func (a *CircleAdapter) ProviderID() string { return provider.IDCircle }

// Normalize translates a raw webhook body into a TransactionEvent.
func (a *CircleAdapter) Normalize(rawPayload []byte) (*domain.TransactionEvent, error) {
	var p circlePayload
	if err := json.Unmarshal(rawPayload, &p); err != nil {
		return nil, &NormalizationError{Provider: provider.IDCircle, Field: "payload", Value: err.Error()}
	}
	if p.NotificationID == "" {
		return nil, &NormalizationError{Provider: provider.IDCircle, Field: "notificationId", Value: ""}
	}
	if p.Transaction.ID == "" {
		return nil, &NormalizationError{Provider: provider.IDCircle, Field: "transaction.id", Value: ""}
	}
	if p.Transaction.TokenSymbol == "" {
		return nil, &NormalizationError{Provider: provider.IDCircle, Field: "transaction.tokenSymbol", Value: ""}
	}

	status, err := circleStatuses.normalize(provider.IDCircle, p.Transaction.State)
	if err != nil {
		return nil, err
	}

	direction, err := circleDirection(p.Transaction.TransactionType)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(p.Transaction.Amount)
	if err != nil {
		return nil, &NormalizationError{Provider: provider.IDCircle, Field: "transaction.amount", Value: p.Transaction.Amount}
	}

	fee := decimal.Zero
	if p.Transaction.NetworkFee != "" {
		fee, err = decimal.NewFromString(p.Transaction.NetworkFee)
		if err != nil {
			return nil, &NormalizationError{Provider: provider.IDCircle, Field: "transaction.networkFee", Value: p.Transaction.NetworkFee}
		}
	}

	occurredAt := time.Now().UTC()
	if p.Transaction.CreateDate != "" {
		parsed, err := time.Parse(time.RFC3339, p.Transaction.CreateDate)
		if err != nil {
			return nil, &NormalizationError{Provider: provider.IDCircle, Field: "transaction.createDate", Value: p.Transaction.CreateDate}
		}
		occurredAt = parsed.UTC()
	}

	return &domain.TransactionEvent{
		ProviderID:            provider.IDCircle,
		ExternalEventID:       p.NotificationID,
		ExternalTransactionID: p.Transaction.ID,
		Direction:             direction,
		AssetCode:             strings.ToUpper(strings.TrimSpace(p.Transaction.TokenSymbol)),
		Amount:                amount,
		FeeAmount:             fee,
		Status:                status,
		OccurredAt:            occurredAt,
		SourceAddress:         p.Transaction.SourceAddress,
		DestinationAddress:    p.Transaction.DestinationAddress,
		RawPayload:            rawPayload,
	}, nil
}

func circleDirection(raw string) (domain.Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "INBOUND":
		return domain.DirectionInbound, nil
	case "OUTBOUND":
		return domain.DirectionOutbound, nil
	}
	return "", &NormalizationError{Provider: provider.IDCircle, Field: "transaction.transactionType", Value: raw}
}
