package domain

import "errors"

// Transfer failures surfaced to callers.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidReference    = errors.New("invalid reference number")
	ErrNoActiveAccount     = errors.New("no active account found")
	ErrReceiverNotFound    = errors.New("receiver account not found")
	ErrSelfTransfer        = errors.New("cannot transfer to the same account")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateReference  = errors.New("reference number already in use")
	ErrTransferFailed      = errors.New("transfer failed")

	// ErrStorageUnavailable is retryable: the ledger could not be reached or
	// the account locks could not be acquired in time.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Retryable reports whether the caller may safely resubmit the same reference.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
