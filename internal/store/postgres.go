package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL applied by Migrate.
func Schema() string { return schema }

const (
	accountColumns     = "account_id, account_number, user_id, balance::text, account_type, status, created_at"
	transactionColumns = "transaction_id, reference_number, sender_account_id, receiver_account_id, initiated_by, amount::text, description, status, failure_reason, created_at"

	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool opens and verifies a pgx connection pool.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

// LedgerStore is the PostgreSQL ledger. Row locks (SELECT ... FOR UPDATE)
// serialize transfers that share an account.
type LedgerStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

func NewLedgerStore(db *pgxpool.Pool, lockTimeout time.Duration) *LedgerStore {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &LedgerStore{db: db, lockTimeout: lockTimeout}
}

// Migrate applies the embedded schema. It is idempotent.
func (s *LedgerStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

// GetAccountByID retrieves a single account by its internal id.
func (s *LedgerStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := s.db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE account_id = $1", id)
	return scanAccount(row)
}

// GetAccountByNumber retrieves a single account by its account number.
func (s *LedgerStore) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	row := s.db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE account_number = $1", number)
	return scanAccount(row)
}

// PrimaryAccount returns the user's oldest ACTIVE account.
func (s *LedgerStore) PrimaryAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = $1 AND status = 'ACTIVE' ORDER BY created_at ASC LIMIT 1",
		userID)
	return scanAccount(row)
}

// CreateAccount opens an ACTIVE zero-balance account for the user.
func (s *LedgerStore) CreateAccount(ctx context.Context, userID uuid.UUID, accountType domain.AccountType) (*domain.Account, error) {
	for attempt := 0; attempt < 3; attempt++ {
		row := s.db.QueryRow(ctx,
			"INSERT INTO accounts (user_id, account_number, account_type) VALUES ($1, $2, $3) RETURNING "+accountColumns,
			userID, domain.NewAccountNumber(), string(accountType))
		acc, err := scanAccount(row)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create account failed: %w", err)
		}
		return acc, nil
	}
	return nil, errors.New("create account failed: account number collisions")
}

// GetTransaction retrieves a transaction record by reference number.
func (s *LedgerStore) GetTransaction(ctx context.Context, reference string) (*domain.Transaction, error) {
	return s.FindByReference(ctx, reference)
}

// FindByReference returns the record already committed for a reference, or ErrTransactionNotFound.
func (s *LedgerStore) FindByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	txn, err := findByReference(ctx, s.db, reference)
	if err != nil && !errors.Is(err, ErrTransactionNotFound) {
		return nil, classify("reference lookup failed", err)
	}
	return txn, err
}

// ExecTransfer applies the transfer as one atomic unit with deterministic locking.
// Both balance mutations and the record insert commit together or not at all.
// A FAILED record is committed (without touching balances) when a business
// check fails under lock, so replays observe the same failure.
func (s *LedgerStore) ExecTransfer(ctx context.Context, cmd TransferCommand) (*CommitResult, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, classify("tx begin failed", err)
	}
	defer tx.Rollback(ctx)

	// 1. Bounded lock waits
	if _, err := tx.Exec(ctx, lockTimeoutSQL(s.lockTimeout)); err != nil {
		return nil, classify("lock timeout setup failed", err)
	}

	// 2. Idempotency fast path
	existing, err := findByReference(ctx, tx, cmd.Reference)
	if err == nil {
		return &CommitResult{Transaction: existing, Replayed: true}, nil
	}
	if !errors.Is(err, ErrTransactionNotFound) {
		return nil, classify("reference lookup failed", err)
	}

	// 3. Deterministic Locking (Deadlock Prevention)
	first, second := lockOrder(cmd.SenderID, cmd.ReceiverID)
	type lockedRow struct {
		balance decimal.Decimal
		status  domain.AccountStatus
	}
	locked := make(map[uuid.UUID]lockedRow, 2)
	for _, id := range []uuid.UUID{first, second} {
		var balance, status string
		err := tx.QueryRow(ctx, "SELECT balance::text, status FROM accounts WHERE account_id = $1 FOR UPDATE", id).
			Scan(&balance, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		if err != nil {
			return nil, classify("lock acquisition failed", err)
		}
		amount, err := decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("bad balance for account %s: %w", id, err)
		}
		locked[id] = lockedRow{balance: amount, status: domain.AccountStatus(status)}
	}

	// 4. Business checks on the locked rows
	txn := &domain.Transaction{
		ID:                uuid.New(),
		Reference:         cmd.Reference,
		SenderAccountID:   cmd.SenderID,
		ReceiverAccountID: cmd.ReceiverID,
		InitiatedBy:       cmd.InitiatedBy,
		Amount:            cmd.Amount,
		Description:       cmd.Description,
		Status:            domain.TransactionCompleted,
	}
	sender, receiver := locked[cmd.SenderID], locked[cmd.ReceiverID]
	switch {
	case sender.status != domain.AccountActive:
		txn.Status, txn.FailureReason = domain.TransactionFailed, domain.ReasonSenderInactive
	case receiver.status != domain.AccountActive:
		txn.Status, txn.FailureReason = domain.TransactionFailed, domain.ReasonReceiverInactive
	case sender.balance.LessThan(cmd.Amount):
		txn.Status, txn.FailureReason = domain.TransactionFailed, domain.ReasonInsufficientBalance
	}

	// 5. Record the attempt. The unique reference index serializes concurrent
	// writers of the same reference; the loser replays the winner's record.
	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (transaction_id, reference_number, sender_account_id, receiver_account_id,
			initiated_by, amount, description, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9) RETURNING created_at`,
		txn.ID, txn.Reference, txn.SenderAccountID, txn.ReceiverAccountID, txn.InitiatedBy,
		txn.Amount.StringFixed(domain.MoneyScale), txn.Description, string(txn.Status), txn.FailureReason,
	).Scan(&txn.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			tx.Rollback(ctx)
			return s.replay(ctx, cmd.Reference)
		}
		return nil, classify("transaction insert failed", err)
	}

	// 6. Update Balances
	if txn.Status == domain.TransactionCompleted {
		amount := cmd.Amount.StringFixed(domain.MoneyScale)
		if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance - $1::numeric WHERE account_id = $2", amount, cmd.SenderID); err != nil {
			return nil, classify("debit failed", err)
		}
		if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1::numeric WHERE account_id = $2", amount, cmd.ReceiverID); err != nil {
			return nil, classify("credit failed", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return s.replay(ctx, cmd.Reference)
		}
		return nil, classify("tx commit failed", err)
	}

	return &CommitResult{Transaction: txn}, nil
}

// lockTimeoutSQL rounds d up to whole milliseconds. Postgres reads 0 as
// "wait forever", so anything positive becomes at least 1ms.
func lockTimeoutSQL(d time.Duration) string {
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", int64(ms))
}

func (s *LedgerStore) replay(ctx context.Context, reference string) (*CommitResult, error) {
	existing, err := s.FindByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("replay lookup failed: %w", err)
	}
	return &CommitResult{Transaction: existing, Replayed: true}, nil
}

func findByReference(ctx context.Context, q querier, reference string) (*domain.Transaction, error) {
	var (
		t                    domain.Transaction
		amount, status, fail string
	)
	err := q.QueryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE reference_number = $1", reference).
		Scan(&t.ID, &t.Reference, &t.SenderAccountID, &t.ReceiverAccountID, &t.InitiatedBy,
			&amount, &t.Description, &status, &fail, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount on %s: %w", reference, err)
	}
	t.Status = domain.TransactionStatus(status)
	t.FailureReason = fail
	return &t, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a                      domain.Account
		balance, typ, status string
	)
	err := row.Scan(&a.ID, &a.Number, &a.UserID, &balance, &typ, &status, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, classify("account lookup failed", err)
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("bad balance on %s: %w", a.Number, err)
	}
	a.Type = domain.AccountType(typ)
	a.Status = domain.AccountStatus(status)
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// classify maps driver errors onto the retryable storage errors.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable:
		return fmt.Errorf("%s: %w", op, ErrLockTimeout)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, ErrLockTimeout)
	case errors.As(err, &pgErr):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	default:
		// Anything that is not a server error is a connection problem.
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
}
