// internal/api/router.go
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"thellex-wallet/internal/api/handler"
	apimw "thellex-wallet/internal/api/middleware"
	"thellex-wallet/internal/provider"
)

// NewRouter sets up and returns a new HTTP router.
func NewRouter(webhookHandler *handler.WebhookHandler, walletHandler *handler.WalletHandler, limiter *apimw.RateLimiter, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(handler.DefaultTimeout))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Provider webhook ingestion. Rate limiting is optional so a missing
	// Redis backend does not take the ingest path down with it.
	r.Route("/webhooks", func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Handler)
		}
		r.Post("/circle", webhookHandler.Receive(provider.IDCircle))
		r.Post("/quidax", webhookHandler.Receive(provider.IDQuidax))
	})

	// Wallet read API
	r.Route("/wallets", func(r chi.Router) {
		r.Get("/{walletID}/balances/{asset}", walletHandler.GetWalletBalance)
		r.Get("/{walletID}/transactions", walletHandler.GetTransactionHistory)
	})

	return r
}
