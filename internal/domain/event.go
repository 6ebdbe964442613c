// internal/domain/event.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CanonicalStatus is the provider-agnostic status vocabulary every
// provider-native status is normalized into at the adapter boundary.
type CanonicalStatus string

const (
	CanonicalStatusAccepted   CanonicalStatus = "ACCEPTED"
	CanonicalStatusProcessing CanonicalStatus = "PROCESSING"
	CanonicalStatusComplete   CanonicalStatus = "COMPLETE"
	CanonicalStatusFailed     CanonicalStatus = "FAILED"
)

// TargetPaymentStatus maps a canonical event status onto the transaction
// lifecycle state it drives toward.
func (s CanonicalStatus) TargetPaymentStatus() PaymentStatus {
	switch s {
	case CanonicalStatusAccepted:
		return PaymentStatusAccepted
	case CanonicalStatusProcessing:
		return PaymentStatusProcessing
	case CanonicalStatusComplete:
		return PaymentStatusComplete
	case CanonicalStatusFailed:
		return PaymentStatusFailed
	}
	return PaymentStatusObserved
}

// TransactionEvent is the ephemeral output of a provider adapter. It is never
// persisted verbatim; the reconciler consumes it exactly once.
type TransactionEvent struct {
	ProviderID            string
	ExternalEventID       string
	ExternalTransactionID string
	Direction             Direction
	AssetCode             string
	Amount                decimal.Decimal
	FeeAmount             decimal.Decimal
	Status                CanonicalStatus
	OccurredAt            time.Time
	SourceAddress         *string
	DestinationAddress    *string
	RawPayload            []byte
}
