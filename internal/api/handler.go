package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/acidbank/internal/auth"
	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/punchamoorthee/acidbank/internal/models"
	"github.com/punchamoorthee/acidbank/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bank_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Transferer executes transfers on behalf of an authenticated user.
type Transferer interface {
	Execute(ctx context.Context, principal uuid.UUID, req domain.TransferRequest) (*service.Outcome, error)
}

// Accounts is the read and create surface of the ledger used by the handlers.
type Accounts interface {
	GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	CreateAccount(ctx context.Context, userID uuid.UUID, accountType domain.AccountType) (*domain.Account, error)
	GetTransaction(ctx context.Context, reference string) (*domain.Transaction, error)
}

type Handler struct {
	accounts Accounts
	engine   Transferer
	logger   *slog.Logger
}

func NewHandler(accounts Accounts, engine Transferer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{accounts: accounts, engine: engine, logger: logger}
}

// Router wires the public routes. Everything under /api/v1 requires a Bearer token.
func (h *Handler) Router(verifier *auth.Verifier) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(verifier.Middleware)
	apiV1.HandleFunc("/accounts", h.CreateAccountHandler).Methods("POST")
	apiV1.HandleFunc("/accounts/{number}", h.GetAccountHandler).Methods("GET")
	apiV1.HandleFunc("/transfers", h.CreateTransferHandler).Methods("POST")
	apiV1.HandleFunc("/transfers/{reference}", h.GetTransferHandler).Methods("GET")
	return r
}

func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "POST", "/transfers"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(method, endpoint))
	defer timer.ObserveDuration()

	principal, _ := auth.PrincipalFrom(r.Context())

	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, method, endpoint, http.StatusBadRequest, models.ErrorResponse{Error: "Malformed JSON body"})
		return
	}

	out, err := h.engine.Execute(r.Context(), principal, domain.TransferRequest{
		SenderAccountNumber:   req.SenderAccountNumber,
		ReceiverAccountNumber: req.ReceiverAccountNumber,
		Amount:                req.Amount,
		Description:           req.Description,
		Reference:             r.Header.Get("Idempotency-Key"),
	})
	if out != nil && out.Replayed {
		w.Header().Set("X-Idempotent-Replay", "true")
	}
	if err != nil {
		h.respondError(w, method, endpoint, err)
		return
	}

	code := http.StatusCreated
	if out.Replayed {
		code = http.StatusOK
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transfers/%s", out.Transaction.Reference))
	respond(w, method, endpoint, code, models.NewTransferResponse(out.Transaction))
}

// statusFor maps the transfer error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrReceiverNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateReference):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidReference),
		errors.Is(err, domain.ErrNoActiveAccount),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrTransferFailed):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) respondError(w http.ResponseWriter, method, endpoint string, err error) {
	code := statusFor(err)
	body := models.ErrorResponse{Error: err.Error(), Retryable: domain.Retryable(err)}

	var te *service.TransferError
	if errors.As(err, &te) {
		body.ReferenceNumber = te.Reference
		body.Error = te.Err.Error()
	}
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", "endpoint", endpoint, "error", err)
		body.Error = "Internal Server Error"
	}
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	respond(w, method, endpoint, code, body)
}

func respond(w http.ResponseWriter, method, endpoint string, code int, payload any) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	respondWithJSON(w, code, payload)
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
