package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrLockTimeout and ErrUnavailable both satisfy errors.Is(err, domain.ErrStorageUnavailable).
	ErrLockTimeout = fmt.Errorf("%w: account lock wait timed out", domain.ErrStorageUnavailable)
	ErrUnavailable = fmt.Errorf("%w: ledger unreachable", domain.ErrStorageUnavailable)
)

// TransferCommand carries everything the atomic unit needs.
type TransferCommand struct {
	Reference   string
	SenderID    uuid.UUID
	ReceiverID  uuid.UUID
	InitiatedBy uuid.UUID
	Amount      decimal.Decimal
	Description string
}

// CommitResult is the committed outcome of ExecTransfer.
// Replayed is set when the reference already had a record and nothing was applied.
type CommitResult struct {
	Transaction *domain.Transaction
	Replayed    bool
}

// lockOrder returns the two ids in the global lock order (ascending bytes).
func lockOrder(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}
