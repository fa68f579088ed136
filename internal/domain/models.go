package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus is the lifecycle state of an account. Accounts are never deleted.
type AccountStatus string

const (
	AccountActive AccountStatus = "ACTIVE"
	AccountFrozen AccountStatus = "FROZEN"
	AccountClosed AccountStatus = "CLOSED"
)

// AccountType classifies what an account is used for.
type AccountType string

const (
	AccountSavings  AccountType = "SAVINGS"
	AccountCurrent  AccountType = "CURRENT"
	AccountBusiness AccountType = "BUSINESS"
)

// Valid reports whether t is one of the supported account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountSavings, AccountCurrent, AccountBusiness:
		return true
	}
	return false
}

// Account represents a user's balance in the ledger.
// Balance is never negative.
type Account struct {
	ID        uuid.UUID       `json:"account_id"`
	Number    string          `json:"account_number"`
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Type      AccountType     `json:"account_type"`
	Status    AccountStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Active reports whether the account may send or receive money.
func (a *Account) Active() bool {
	return a.Status == AccountActive
}

// TransactionStatus is the terminal outcome of a transfer attempt.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// Failure reasons stored on FAILED transaction records.
const (
	ReasonInsufficientBalance = "INSUFFICIENT_BALANCE"
	ReasonSenderInactive      = "SENDER_INACTIVE"
	ReasonReceiverInactive    = "RECEIVER_INACTIVE"
)

// Transaction is the immutable record of one transfer attempt.
// A reference number maps to at most one Transaction.
type Transaction struct {
	ID                uuid.UUID         `json:"transaction_id"`
	Reference         string            `json:"reference_number"`
	SenderAccountID   uuid.UUID         `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID         `json:"receiver_account_id"`
	InitiatedBy       uuid.UUID         `json:"initiated_by"`
	Amount            decimal.Decimal   `json:"amount"`
	Description       string            `json:"description"`
	Status            TransactionStatus `json:"status"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Err returns the typed failure a FAILED record stands for, or nil.
func (t *Transaction) Err() error {
	if t.Status != TransactionFailed {
		return nil
	}
	switch t.FailureReason {
	case ReasonInsufficientBalance:
		return ErrInsufficientBalance
	case ReasonSenderInactive:
		return ErrNoActiveAccount
	case ReasonReceiverInactive:
		return ErrReceiverNotFound
	}
	return ErrTransferFailed
}

// TransferRequest is what an authenticated caller asks the engine to do.
// SenderAccountNumber is optional; the caller's primary account is used when empty.
type TransferRequest struct {
	SenderAccountNumber   string
	ReceiverAccountNumber string
	Amount                decimal.Decimal
	Description           string
	Reference             string
}

// AuditEntry is written for every transfer attempt, successful or not.
type AuditEntry struct {
	UserID      uuid.UUID `json:"user_id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	AuditTransferSuccess = "TRANSFER_SUCCESS"
	AuditTransferFailed  = "TRANSFER_FAILED"

	AuditStatusSuccess = "SUCCESS"
	AuditStatusFailed  = "FAILED"
)

// SecurityAlert is raised for activity the account owner should look at.
type SecurityAlert struct {
	UserID    uuid.UUID `json:"user_id"`
	Type      string    `json:"alert_type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	AlertLargeWithdrawal = "LARGE_WITHDRAWAL"

	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)
