package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"
)

// MemoryStore is an in-process ledger. Each account has a single-writer lock
// (a weighted semaphore of size one) so waits can be bounded by a context.
// mu guards the maps; every mutation of balances and records happens under mu
// in one critical section, so readers never observe a partial transfer.
type MemoryStore struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]*domain.Account
	byNumber     map[string]uuid.UUID
	transactions map[string]*domain.Transaction
	locks        map[uuid.UUID]*semaphore.Weighted

	lockTimeout time.Duration
	now         func() time.Time
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &MemoryStore{
		accounts:     make(map[uuid.UUID]*domain.Account),
		byNumber:     make(map[string]uuid.UUID),
		transactions: make(map[string]*domain.Transaction),
		locks:        make(map[uuid.UUID]*semaphore.Weighted),
		lockTimeout:  lockTimeout,
		now:          time.Now,
	}
}

// Seed inserts an account as-is. Used by tests and local runs.
func (m *MemoryStore) Seed(acc domain.Account) (*domain.Account, error) {
	if acc.Balance.IsNegative() {
		return nil, fmt.Errorf("seed %s: %w", acc.Number, domain.ErrInvalidAmount)
	}
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	if acc.Number == "" {
		acc.Number = domain.NewAccountNumber()
	}
	if acc.Status == "" {
		acc.Status = domain.AccountActive
	}
	if acc.Type == "" {
		acc.Type = domain.AccountSavings
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byNumber[acc.Number]; ok {
		return nil, fmt.Errorf("account number %s already exists", acc.Number)
	}
	stored := acc
	m.accounts[acc.ID] = &stored
	m.byNumber[acc.Number] = acc.ID
	m.locks[acc.ID] = semaphore.NewWeighted(1)
	cp := stored
	return &cp, nil
}

// SetStatus changes an account's lifecycle state.
func (m *MemoryStore) SetStatus(id uuid.UUID, status domain.AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acc.Status = status
	return nil
}

func (m *MemoryStore) CreateAccount(ctx context.Context, userID uuid.UUID, accountType domain.AccountType) (*domain.Account, error) {
	for attempt := 0; attempt < 3; attempt++ {
		acc, err := m.Seed(domain.Account{UserID: userID, Type: accountType, Balance: decimal.Zero})
		if err == nil {
			return acc, nil
		}
	}
	return nil, errors.New("create account failed: account number collisions")
}

func (m *MemoryStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (m *MemoryStore) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	m.mu.RLock()
	id, ok := m.byNumber[number]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrAccountNotFound
	}
	return m.GetAccountByID(ctx, id)
}

// PrimaryAccount returns the user's oldest ACTIVE account.
func (m *MemoryStore) PrimaryAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var owned []*domain.Account
	for _, acc := range m.accounts {
		if acc.UserID == userID && acc.Active() {
			owned = append(owned, acc)
		}
	}
	if len(owned) == 0 {
		return nil, ErrAccountNotFound
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].Number < owned[j].Number
		}
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})
	cp := *owned[0]
	return &cp, nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, reference string) (*domain.Transaction, error) {
	return m.FindByReference(ctx, reference)
}

func (m *MemoryStore) FindByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txn, ok := m.transactions[reference]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *txn
	return &cp, nil
}

// Transactions returns a snapshot of every record, for assertions in tests.
func (m *MemoryStore) Transactions() []domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Transaction, 0, len(m.transactions))
	for _, txn := range m.transactions {
		out = append(out, *txn)
	}
	return out
}

// ExecTransfer mirrors LedgerStore.ExecTransfer: ordered per-account locks with a
// bounded wait, checks re-done under lock, and one critical section for the writes.
func (m *MemoryStore) ExecTransfer(ctx context.Context, cmd TransferCommand) (*CommitResult, error) {
	if existing, err := m.FindByReference(ctx, cmd.Reference); err == nil {
		return &CommitResult{Transaction: existing, Replayed: true}, nil
	}

	first, second := lockOrder(cmd.SenderID, cmd.ReceiverID)
	m.mu.RLock()
	firstLock, ok1 := m.locks[first]
	secondLock, ok2 := m.locks[second]
	m.mu.RUnlock()
	if !ok1 || !ok2 {
		return nil, ErrAccountNotFound
	}

	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()
	if err := firstLock.Acquire(lockCtx, 1); err != nil {
		return nil, lockErr(ctx, err)
	}
	defer firstLock.Release(1)
	if first != second {
		if err := secondLock.Acquire(lockCtx, 1); err != nil {
			return nil, lockErr(ctx, err)
		}
		defer secondLock.Release(1)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// A writer with the same reference but other accounts may have committed meanwhile.
	if existing, ok := m.transactions[cmd.Reference]; ok {
		cp := *existing
		return &CommitResult{Transaction: &cp, Replayed: true}, nil
	}

	sender, receiver := m.accounts[cmd.SenderID], m.accounts[cmd.ReceiverID]
	txn := &domain.Transaction{
		ID:                uuid.New(),
		Reference:         cmd.Reference,
		SenderAccountID:   cmd.SenderID,
		ReceiverAccountID: cmd.ReceiverID,
		InitiatedBy:       cmd.InitiatedBy,
		Amount:            cmd.Amount,
		Description:       cmd.Description,
		Status:            domain.TransactionCompleted,
		CreatedAt:         m.now(),
	}
	switch {
	case !sender.Active():
		txn.Status, txn.FailureReason = domain.TransactionFailed, domain.ReasonSenderInactive
	case !receiver.Active():
		txn.Status, txn.FailureReason = domain.TransactionFailed, domain.ReasonReceiverInactive
	case sender.Balance.LessThan(cmd.Amount):
		txn.Status, txn.FailureReason = domain.TransactionFailed, domain.ReasonInsufficientBalance
	default:
		sender.Balance = sender.Balance.Sub(cmd.Amount)
		receiver.Balance = receiver.Balance.Add(cmd.Amount)
	}
	m.transactions[cmd.Reference] = txn

	cp := *txn
	return &CommitResult{Transaction: &cp}, nil
}

func lockErr(ctx context.Context, err error) error {
	// A cancelled caller is not a storage problem.
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", ErrLockTimeout, err)
}
