// internal/api/handler/wallet.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"thellex-wallet/internal/api/types"
	"thellex-wallet/internal/domain"
	"thellex-wallet/internal/repository"
	"thellex-wallet/internal/util"
)

// DefaultTimeout bounds request handling at the router.
const DefaultTimeout = 30 * time.Second

// WalletHandler serves the read API: balances and transaction history.
// Writes never come through here; the ledger is mutated only by the
// reconciliation engine.
type WalletHandler struct {
	walletRepo repository.WalletRepository
	txRepo     repository.TransactionRepository
	db         repository.DBExecutor
	logger     *slog.Logger
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletRepo repository.WalletRepository, txRepo repository.TransactionRepository, db repository.DBExecutor, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		db:         db,
		logger:     logger,
	}
}

// Helper function to send JSON responses.
func (h *WalletHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// Helper function to send error responses.
func (h *WalletHandler) respondWithError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case util.IsError(err, util.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		message = err.Error()
	case util.IsError(err, util.ErrNotFound), util.IsError(err, util.ErrWalletNotFound):
		statusCode = http.StatusNotFound
		message = "Resource not found"
	default:
		h.logger.Error("Unhandled repository error", "error", err)
	}

	h.respondWithJSON(w, statusCode, map[string]string{"error": message})
}

// GetWalletBalance handles GET /wallets/{walletID}/balances/{asset}.
func (h *WalletHandler) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	walletID, err := strconv.ParseInt(chi.URLParam(r, "walletID"), 10, 64)
	if err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	asset := chi.URLParam(r, "asset")
	if asset == "" {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	wallet, err := h.walletRepo.GetWalletByID(r.Context(), h.db, walletID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	balance, err := h.walletRepo.GetAssetBalance(r.Context(), h.db, walletID, asset)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			// No balance row yet: report zero rather than 404, the wallet
			// exists but has never held the asset.
			h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
				"wallet_id": wallet.ID,
				"asset":     asset,
				"balance":   decimal.Zero,
			})
			return
		}
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"wallet_id": wallet.ID,
		"asset":     balance.AssetCode,
		"balance":   balance.Balance,
		"synced_at": balance.SyncedAt,
	})
}

// GetTransactionHistory handles GET /wallets/{walletID}/transactions.
func (h *WalletHandler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	walletID, err := strconv.ParseInt(chi.URLParam(r, "walletID"), 10, 64)
	if err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0 // Default offset
	}

	if _, err := h.walletRepo.GetWalletByID(r.Context(), h.db, walletID); err != nil {
		if util.IsError(err, util.ErrNotFound) {
			h.respondWithError(w, util.ErrWalletNotFound)
			return
		}
		h.respondWithError(w, err)
		return
	}

	transactions, totalCount, err := h.txRepo.GetTransactionsByWalletID(r.Context(), h.db, walletID, limit, offset)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.PaginatedResponse[domain.Transaction]{
		Data:       transactions,
		Limit:      limit,
		Offset:     offset,
		TotalCount: totalCount,
	})
}
