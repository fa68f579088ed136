package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/acidbank/internal/auth"
	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/punchamoorthee/acidbank/internal/idempotency"
	"github.com/punchamoorthee/acidbank/internal/models"
	"github.com/punchamoorthee/acidbank/internal/service"
	"github.com/punchamoorthee/acidbank/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "api-test-secret"

type testServer struct {
	router http.Handler
	mem    *store.MemoryStore
	alice  *domain.Account
	bob    *domain.Account
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemoryStore(time.Second)
	alice, err := mem.Seed(domain.Account{UserID: uuid.New(), Number: "SL1000000001", Balance: decimal.RequireFromString("10000.00")})
	require.NoError(t, err)
	bob, err := mem.Seed(domain.Account{UserID: uuid.New(), Number: "SL1000000002", Balance: decimal.RequireFromString("5000.00")})
	require.NoError(t, err)

	engine := service.NewTransferService(mem, idempotency.NewGuard(mem, nil, nil), nil, service.DefaultLimits(), nil)
	h := NewHandler(mem, engine, nil)
	return &testServer{
		router: h.Router(auth.NewVerifier(testSecret, nil)),
		mem:    mem,
		alice:  alice,
		bob:    bob,
	}
}

func (s *testServer) do(t *testing.T, user uuid.UUID, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	token, err := auth.Sign(testSecret, user, time.Minute)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func TestCreateTransferHandler(t *testing.T) {
	s := newTestServer(t)

	body := map[string]any{"receiver_account_number": s.bob.Number, "amount": "1000.00"}
	rr := s.do(t, s.alice.UserID, "POST", "/api/v1/transfers", body, map[string]string{"Idempotency-Key": "TEST001"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp models.TransferResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "TEST001", resp.ReferenceNumber)
	assert.Equal(t, "1000.00", resp.Amount)
	assert.Equal(t, "COMPLETED", resp.Status)
	assert.Equal(t, "/api/v1/transfers/TEST001", rr.Header().Get("Location"))

	// Same key again: replay, nothing applied twice.
	rr = s.do(t, s.alice.UserID, "POST", "/api/v1/transfers", body, map[string]string{"Idempotency-Key": "TEST001"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "true", rr.Header().Get("X-Idempotent-Replay"))

	var replay models.TransferResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &replay))
	assert.Equal(t, resp.TransactionID, replay.TransactionID)

	acc, err := s.mem.GetAccountByID(context.Background(), s.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "9000.00", acc.Balance.StringFixed(2))
}

func TestCreateTransferHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     func(s *testServer) any
		key      string
		wantCode int
		wantRef  bool
	}{
		{
			name:     "malformed json",
			body:     func(s *testServer) any { return "{" },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "insufficient balance",
			body:     func(s *testServer) any { return map[string]any{"receiver_account_number": s.bob.Number, "amount": 50000} },
			key:      "TEST002",
			wantCode: http.StatusBadRequest,
			wantRef:  true,
		},
		{
			name:     "negative amount",
			body:     func(s *testServer) any { return map[string]any{"receiver_account_number": s.bob.Number, "amount": "-5"} },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "self transfer",
			body:     func(s *testServer) any { return map[string]any{"receiver_account_number": s.alice.Number, "amount": "5"} },
			wantCode: http.StatusBadRequest,
			wantRef:  true,
		},
		{
			name:     "unknown receiver",
			body:     func(s *testServer) any { return map[string]any{"receiver_account_number": "SL0000000000", "amount": "5"} },
			wantCode: http.StatusNotFound,
			wantRef:  true,
		},
		{
			name:     "bad reference",
			body:     func(s *testServer) any { return map[string]any{"receiver_account_number": s.bob.Number, "amount": "5"} },
			key:      "no spaces allowed",
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			headers := map[string]string{}
			if tt.key != "" {
				headers["Idempotency-Key"] = tt.key
			}
			rr := s.do(t, s.alice.UserID, "POST", "/api/v1/transfers", tt.body(s), headers)
			assert.Equal(t, tt.wantCode, rr.Code, rr.Body.String())

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.wantRef, resp.ReferenceNumber != "")
		})
	}
}

func TestCreateTransferHandler_DuplicateReferenceFromOtherUser(t *testing.T) {
	s := newTestServer(t)
	headers := map[string]string{"Idempotency-Key": "SHARED"}

	rr := s.do(t, s.alice.UserID, "POST", "/api/v1/transfers",
		map[string]any{"receiver_account_number": s.bob.Number, "amount": "1"}, headers)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.do(t, s.bob.UserID, "POST", "/api/v1/transfers",
		map[string]any{"receiver_account_number": s.alice.Number, "amount": "1"}, headers)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/v1/accounts/"+s.alice.Number, nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest("GET", "/health", nil)
	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAccountHandlers(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, s.alice.UserID, "GET", "/api/v1/accounts/"+s.alice.Number, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var acc models.Account
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &acc))
	assert.Equal(t, "10000.00", acc.Balance)

	// Someone else's account is not visible.
	rr = s.do(t, s.bob.UserID, "GET", "/api/v1/accounts/"+s.alice.Number, nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, s.alice.UserID, "POST", "/api/v1/accounts", map[string]string{"account_type": "CURRENT"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &acc))
	assert.Equal(t, "CURRENT", acc.AccountType)
	assert.Equal(t, "0.00", acc.Balance)
	assert.Regexp(t, `^SL\d{10}$`, acc.AccountNumber)

	rr = s.do(t, s.alice.UserID, "POST", "/api/v1/accounts", map[string]string{"account_type": "CRYPTO"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetTransferHandler(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, s.alice.UserID, "POST", "/api/v1/transfers",
		map[string]any{"receiver_account_number": s.bob.Number, "amount": "250.50"},
		map[string]string{"Idempotency-Key": "LOOKUP-1"})
	require.Equal(t, http.StatusCreated, rr.Code)

	for _, user := range []uuid.UUID{s.alice.UserID, s.bob.UserID} {
		rr = s.do(t, user, "GET", "/api/v1/transfers/LOOKUP-1", nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var txn models.Transaction
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &txn))
		assert.Equal(t, "250.50", txn.Amount)
	}

	rr = s.do(t, uuid.New(), "GET", "/api/v1/transfers/LOOKUP-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, s.alice.UserID, "GET", "/api/v1/transfers/NOPE", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrSelfTransfer, http.StatusBadRequest},
		{domain.ErrInsufficientBalance, http.StatusBadRequest},
		{domain.ErrNoActiveAccount, http.StatusBadRequest},
		{domain.ErrReceiverNotFound, http.StatusNotFound},
		{domain.ErrDuplicateReference, http.StatusConflict},
		{store.ErrLockTimeout, http.StatusServiceUnavailable},
		{&service.TransferError{Reference: "R", Err: store.ErrUnavailable}, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
