package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/shopspring/decimal"
)

// TransferRequest is the payload from the client.
// Amount accepts a JSON number or string; a string avoids float rounding on the client.
type TransferRequest struct {
	SenderAccountNumber   string          `json:"sender_account_number,omitempty"`
	ReceiverAccountNumber string          `json:"receiver_account_number"`
	Amount                decimal.Decimal `json:"amount"`
	Description           string          `json:"description,omitempty"`
}

// TransferResponse is returned for a new or replayed transfer.
type TransferResponse struct {
	TransactionID   uuid.UUID `json:"transaction_id"`
	ReferenceNumber string    `json:"reference_number"`
	Amount          string    `json:"amount"`
	Status          string    `json:"status"`
	Message         string    `json:"message"`
}

func NewTransferResponse(txn *domain.Transaction) TransferResponse {
	return TransferResponse{
		TransactionID:   txn.ID,
		ReferenceNumber: txn.Reference,
		Amount:          txn.Amount.StringFixed(domain.MoneyScale),
		Status:          string(txn.Status),
		Message:         "Transfer completed successfully",
	}
}

// Transaction is the read model of a stored record.
type Transaction struct {
	TransactionID     uuid.UUID `json:"transaction_id"`
	ReferenceNumber   string    `json:"reference_number"`
	SenderAccountID   uuid.UUID `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID `json:"receiver_account_id"`
	Amount            string    `json:"amount"`
	Description       string    `json:"description,omitempty"`
	Status            string    `json:"status"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	CreatedAt         string    `json:"created_at"`
}

func NewTransaction(txn *domain.Transaction) Transaction {
	return Transaction{
		TransactionID:     txn.ID,
		ReferenceNumber:   txn.Reference,
		SenderAccountID:   txn.SenderAccountID,
		ReceiverAccountID: txn.ReceiverAccountID,
		Amount:            txn.Amount.StringFixed(domain.MoneyScale),
		Description:       txn.Description,
		Status:            string(txn.Status),
		FailureReason:     txn.FailureReason,
		CreatedAt:         txn.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CreateAccountRequest opens a new account for the caller.
type CreateAccountRequest struct {
	AccountType string `json:"account_type"`
}

// Account represents a user's ledger account.
type Account struct {
	AccountID     uuid.UUID `json:"account_id"`
	AccountNumber string    `json:"account_number"`
	AccountType   string    `json:"account_type"`
	Balance       string    `json:"balance"`
	Status        string    `json:"status"`
}

func NewAccount(acc *domain.Account) Account {
	return Account{
		AccountID:     acc.ID,
		AccountNumber: acc.Number,
		AccountType:   string(acc.Type),
		Balance:       acc.Balance.StringFixed(domain.MoneyScale),
		Status:        string(acc.Status),
	}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error           string `json:"error"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	Retryable       bool   `json:"retryable,omitempty"`
}
