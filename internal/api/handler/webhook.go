// internal/api/handler/webhook.go
package handler

import (
	"io"
	"log/slog"
	"net/http"

	"thellex-wallet/internal/adapter"
	"thellex-wallet/internal/audit"
	"thellex-wallet/internal/guard"
	"thellex-wallet/internal/metrics"
	"thellex-wallet/internal/reconciler"
	"thellex-wallet/internal/util"
)

// maxWebhookBody bounds provider payload size.
const maxWebhookBody = 1 << 20

// WebhookHandler receives provider delivery notifications. The idempotency
// decision happens before the response is written, so a provider retrying on
// timeout cannot mint a duplicate; reconciliation itself runs synchronously
// under the router's timeout middleware.
type WebhookHandler struct {
	adapters   map[string]adapter.Adapter
	guard      *guard.IdempotencyGuard
	reconciler *reconciler.Reconciler
	trail      audit.Trail
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewWebhookHandler creates a handler over the registered adapters.
func NewWebhookHandler(adapters []adapter.Adapter, g *guard.IdempotencyGuard, rec *reconciler.Reconciler, trail audit.Trail, m *metrics.Metrics, logger *slog.Logger) *WebhookHandler {
	byID := make(map[string]adapter.Adapter, len(adapters))
	for _, a := range adapters {
		byID[a.ProviderID()] = a
	}
	return &WebhookHandler{
		adapters:   byID,
		guard:      g,
		reconciler: rec,
		trail:      trail,
		metrics:    m,
		logger:     logger,
	}
}

// Receive handles POST /webhooks/{provider}.
func (h *WebhookHandler) Receive(providerID string) http.HandlerFunc {
	adp, registered := h.adapters[providerID]

	return func(w http.ResponseWriter, r *http.Request) {
		if !registered {
			http.NotFound(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			h.metrics.WebhooksTotal.WithLabelValues(providerID, "read_error").Inc()
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		event, err := adp.Normalize(body)
		if err != nil {
			// Normalization failures drop the event but are always
			// recorded with external identity for audit.
			h.metrics.WebhooksTotal.WithLabelValues(providerID, "normalization_error").Inc()
			h.logger.Warn("webhook normalization failed", "provider", providerID, "error", err)
			h.trail.Record(r.Context(), audit.DroppedEvent{
				Provider:   providerID,
				Reason:     "normalization",
				Detail:     err.Error(),
				RawPayload: body,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		decision, err := h.guard.Check(r.Context(), event.ProviderID, event.ExternalEventID, event.ExternalTransactionID)
		if err != nil {
			// Fail closed: tell the provider to retry rather than risk a
			// duplicate ledger entry during a store outage.
			h.metrics.WebhooksTotal.WithLabelValues(providerID, "guard_unavailable").Inc()
			h.logger.Error("idempotency guard unavailable", "provider", providerID, "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if decision == guard.DecisionDuplicate {
			h.metrics.WebhooksTotal.WithLabelValues(providerID, "duplicate").Inc()
			w.WriteHeader(http.StatusOK)
			return
		}

		outcome, err := h.reconciler.Apply(r.Context(), event)
		if err != nil {
			if util.IsError(err, util.ErrWalletNotFound) || util.IsError(err, util.ErrInvalidInput) {
				// Unattributable event: recorded by the reconciler, no
				// retry will help, acknowledge so the provider stops.
				h.metrics.WebhooksTotal.WithLabelValues(providerID, "unattributable").Inc()
				w.WriteHeader(http.StatusOK)
				return
			}
			// Transient failure: release the claim so the provider's
			// retry is processed rather than collapsed.
			h.guard.Release(event.ProviderID, event.ExternalEventID)
			h.metrics.WebhooksTotal.WithLabelValues(providerID, "retryable_error").Inc()
			h.logger.Error("reconciliation failed", "provider", providerID,
				"external_event_id", event.ExternalEventID, "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		h.metrics.WebhooksTotal.WithLabelValues(providerID, string(outcome)).Inc()
		w.WriteHeader(http.StatusOK)
	}
}
