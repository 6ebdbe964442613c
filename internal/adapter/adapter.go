// internal/adapter/adapter.go
package adapter

import (
	"fmt"
	"strings"

	"thellex-wallet/internal/domain"
	"thellex-wallet/internal/provider"
)

// Adapter translates one provider's webhook payload into a canonical
// TransactionEvent. Adapters are pure: no I/O, no side effects.
type Adapter interface {
	ProviderID() string
	Normalize(rawPayload []byte) (*domain.TransactionEvent, error)
}

// NormalizationError reports a payload that could not be translated. The
// event is dropped and audited; it never reaches the reconciler.
type NormalizationError struct {
	Provider string
	Field    string
	Value    string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("%s payload: cannot normalize field %q with value %q", e.Provider, e.Field, e.Value)
}

// NormalizeStatus maps a provider-native status string onto the canonical
// vocabulary using the same tables the webhook adapters use. The settlement
// scheduler feeds provider poll/payout results through this so both event
// sources share one status mapping.
func NormalizeStatus(providerID, raw string) (domain.CanonicalStatus, error) {
	switch providerID {
	case provider.IDCircle:
		return circleStatuses.normalize(providerID, raw)
	case provider.IDQuidax:
		return quidaxStatuses.normalize(providerID, raw)
	}
	return "", &NormalizationError{Provider: providerID, Field: "provider", Value: providerID}
}

// statusTable maps a provider's native status vocabulary onto the canonical
// set. Lookup is case-insensitive and whitespace-tolerant. An unmapped value
// is an error, never a silent default; defaulting a payment status is a
// correctness hazard.
type statusTable map[string]domain.CanonicalStatus

func (t statusTable) normalize(provider, raw string) (domain.CanonicalStatus, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	status, ok := t[key]
	if !ok {
		return "", &NormalizationError{Provider: provider, Field: "status", Value: raw}
	}
	return status, nil
}
