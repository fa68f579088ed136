package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/punchamoorthee/acidbank/internal/auth"
	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/punchamoorthee/acidbank/internal/models"
	"github.com/punchamoorthee/acidbank/internal/store"
)

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "POST", "/accounts"
	principal, _ := auth.PrincipalFrom(r.Context())

	var req models.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, method, endpoint, http.StatusBadRequest, models.ErrorResponse{Error: "Malformed JSON body"})
		return
	}
	accountType := domain.AccountType(req.AccountType)
	if accountType == "" {
		accountType = domain.AccountSavings
	}
	if !accountType.Valid() {
		respond(w, method, endpoint, http.StatusBadRequest, models.ErrorResponse{Error: "Unknown account type"})
		return
	}

	acc, err := h.accounts.CreateAccount(r.Context(), principal, accountType)
	if err != nil {
		h.respondError(w, method, endpoint, err)
		return
	}
	h.logger.Info("account created", "account", acc.Number, "user_id", principal)
	respond(w, method, endpoint, http.StatusCreated, models.NewAccount(acc))
}

// GetAccountHandler only reveals accounts the caller owns; anything else is a 404.
func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "GET", "/accounts/{number}"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(method, endpoint))
	defer timer.ObserveDuration()

	principal, _ := auth.PrincipalFrom(r.Context())
	acc, err := h.accounts.GetAccountByNumber(r.Context(), mux.Vars(r)["number"])
	if errors.Is(err, store.ErrAccountNotFound) || (err == nil && acc.UserID != principal) {
		respond(w, method, endpoint, http.StatusNotFound, models.ErrorResponse{Error: "Account not found"})
		return
	}
	if err != nil {
		h.respondError(w, method, endpoint, err)
		return
	}
	respond(w, method, endpoint, http.StatusOK, models.NewAccount(acc))
}

// GetTransferHandler returns a record to the user who initiated it or who
// owns the receiving account.
func (h *Handler) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "GET", "/transfers/{reference}"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(method, endpoint))
	defer timer.ObserveDuration()

	principal, _ := auth.PrincipalFrom(r.Context())
	txn, err := h.accounts.GetTransaction(r.Context(), mux.Vars(r)["reference"])
	if errors.Is(err, store.ErrTransactionNotFound) {
		respond(w, method, endpoint, http.StatusNotFound, models.ErrorResponse{Error: "Transfer not found"})
		return
	}
	if err != nil {
		h.respondError(w, method, endpoint, err)
		return
	}

	if txn.InitiatedBy != principal {
		receiver, err := h.accounts.GetAccountByID(r.Context(), txn.ReceiverAccountID)
		if err != nil || receiver.UserID != principal {
			respond(w, method, endpoint, http.StatusNotFound, models.ErrorResponse{Error: "Transfer not found"})
			return
		}
	}
	respond(w, method, endpoint, http.StatusOK, models.NewTransaction(txn))
}
