package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/punchamoorthee/acidbank/internal/idempotency"
	"github.com/punchamoorthee/acidbank/internal/store"
	"github.com/shopspring/decimal"
)

var (
	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_transfers_total",
		Help: "Transfer attempts by outcome",
	}, []string{"outcome"})

	transferDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bank_transfer_duration_seconds",
		Help:    "Time spent executing a transfer, locks included",
		Buckets: prometheus.DefBuckets,
	})
)

// commitTimeout bounds one atomic unit once it no longer follows the request context.
const commitTimeout = 30 * time.Second

// Ledger is the part of the storage layer the engine needs.
type Ledger interface {
	GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error)
	PrimaryAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	ExecTransfer(ctx context.Context, cmd store.TransferCommand) (*store.CommitResult, error)
}

// Notifier receives audit entries and alerts. Implementations must not block.
type Notifier interface {
	Audit(entry domain.AuditEntry)
	Alert(alert domain.SecurityAlert)
}

type Limits struct {
	MaxAmount              decimal.Decimal
	LargeTransferThreshold decimal.Decimal
}

func DefaultLimits() Limits {
	return Limits{
		MaxAmount:              decimal.NewFromInt(1_000_000),
		LargeTransferThreshold: decimal.NewFromInt(10_000),
	}
}

// Outcome is the result of a transfer that reached a terminal state.
type Outcome struct {
	Transaction *domain.Transaction
	Replayed    bool
}

// TransferError carries the reference a failure belongs to. Reference is empty
// when the request was rejected before one was assigned.
type TransferError struct {
	Reference string
	Err       error
}

func (e *TransferError) Error() string {
	if e.Reference == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("transfer %s: %v", e.Reference, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

type TransferService struct {
	ledger   Ledger
	guard    *idempotency.Guard
	notifier Notifier
	limits   Limits
	logger   *slog.Logger
}

func NewTransferService(ledger Ledger, guard *idempotency.Guard, notifier Notifier, limits Limits, logger *slog.Logger) *TransferService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransferService{
		ledger:   ledger,
		guard:    guard,
		notifier: notifier,
		limits:   limits,
		logger:   logger,
	}
}

// Execute moves req.Amount from the caller's account to the receiver.
// Either both balances change and a COMPLETED record exists, or neither changes.
// Resubmitting a reference returns the first outcome without applying anything.
func (s *TransferService) Execute(ctx context.Context, principal uuid.UUID, req domain.TransferRequest) (*Outcome, error) {
	start := time.Now()
	defer func() { transferDuration.Observe(time.Since(start).Seconds()) }()

	if err := domain.ValidateAmount(req.Amount, s.limits.MaxAmount); err != nil {
		return nil, s.reject(principal, req.Reference, err)
	}

	ref := req.Reference
	if ref == "" {
		ref = domain.NewReference()
	} else if err := domain.ValidateReference(ref); err != nil {
		return nil, s.reject(principal, "", err)
	}

	// Replays are answered before account resolution so a later status
	// change on either account does not alter a stored outcome.
	existing, err := s.guard.FindExisting(ctx, ref)
	if err != nil {
		return nil, s.unavailable(ref, err)
	}
	if existing != nil {
		return s.replay(principal, existing)
	}

	sender, err := s.resolveSender(ctx, principal, req.SenderAccountNumber)
	if err != nil {
		return nil, s.reject(principal, ref, err)
	}
	if req.ReceiverAccountNumber == sender.Number {
		return nil, s.reject(principal, ref, domain.ErrSelfTransfer)
	}
	receiver, err := s.resolveReceiver(ctx, req.ReceiverAccountNumber)
	if err != nil {
		return nil, s.reject(principal, ref, err)
	}

	res, err := s.guard.Do(ref, func() (*store.CommitResult, error) {
		// Every caller waiting on this reference shares the result, so the
		// first caller going away must not cancel it for the others.
		execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		defer cancel()
		return s.ledger.ExecTransfer(execCtx, store.TransferCommand{
			Reference:   ref,
			SenderID:    sender.ID,
			ReceiverID:  receiver.ID,
			InitiatedBy: principal,
			Amount:      req.Amount.Round(domain.MoneyScale),
			Description: req.Description,
		})
	})
	if err != nil {
		return nil, s.unavailable(ref, err)
	}
	if res.Replayed {
		return s.replay(principal, res.Transaction)
	}

	txn := res.Transaction
	s.guard.Remember(ctx, txn)

	if err := txn.Err(); err != nil {
		transfersTotal.WithLabelValues("failed").Inc()
		s.logger.Info("transfer failed under lock", "reference", ref, "sender", sender.Number, "reason", txn.FailureReason)
		s.audit(principal, domain.AuditTransferFailed, domain.AuditStatusFailed,
			fmt.Sprintf("Failed transfer: %v", err))
		return &Outcome{Transaction: txn}, &TransferError{Reference: ref, Err: err}
	}

	transfersTotal.WithLabelValues("completed").Inc()
	s.logger.Info("transfer completed", "reference", ref, "sender", sender.Number,
		"receiver", receiver.Number, "amount", txn.Amount.StringFixed(domain.MoneyScale))

	if txn.Amount.GreaterThan(s.limits.LargeTransferThreshold) {
		s.alert(domain.SecurityAlert{
			UserID:   principal,
			Type:     domain.AlertLargeWithdrawal,
			Severity: domain.SeverityMedium,
			Message:  fmt.Sprintf("Large transfer of %s completed", txn.Amount.StringFixed(domain.MoneyScale)),
		})
	}
	s.audit(principal, domain.AuditTransferSuccess, domain.AuditStatusSuccess,
		fmt.Sprintf("Transfer of %s to %s", txn.Amount.StringFixed(domain.MoneyScale), receiver.Number))

	return &Outcome{Transaction: txn}, nil
}

func (s *TransferService) resolveSender(ctx context.Context, principal uuid.UUID, number string) (*domain.Account, error) {
	var (
		acc *domain.Account
		err error
	)
	if number != "" {
		acc, err = s.ledger.GetAccountByNumber(ctx, number)
	} else {
		acc, err = s.ledger.PrimaryAccount(ctx, principal)
	}
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, domain.ErrNoActiveAccount
	}
	if err != nil {
		return nil, err
	}
	if acc.UserID != principal || !acc.Active() {
		return nil, domain.ErrNoActiveAccount
	}
	return acc, nil
}

func (s *TransferService) resolveReceiver(ctx context.Context, number string) (*domain.Account, error) {
	if number == "" {
		return nil, domain.ErrReceiverNotFound
	}
	acc, err := s.ledger.GetAccountByNumber(ctx, number)
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, domain.ErrReceiverNotFound
	}
	if err != nil {
		return nil, err
	}
	if !acc.Active() {
		return nil, domain.ErrReceiverNotFound
	}
	return acc, nil
}

// replay turns a stored record into the outcome the first caller saw.
func (s *TransferService) replay(principal uuid.UUID, txn *domain.Transaction) (*Outcome, error) {
	if txn.InitiatedBy != principal {
		transfersTotal.WithLabelValues("duplicate").Inc()
		return nil, &TransferError{Reference: txn.Reference, Err: domain.ErrDuplicateReference}
	}
	transfersTotal.WithLabelValues("replayed").Inc()
	out := &Outcome{Transaction: txn, Replayed: true}
	if err := txn.Err(); err != nil {
		return out, &TransferError{Reference: txn.Reference, Err: err}
	}
	return out, nil
}

// reject records a failure detected before any lock was taken.
func (s *TransferService) reject(principal uuid.UUID, ref string, err error) error {
	if domain.Retryable(err) {
		return s.unavailable(ref, err)
	}
	transfersTotal.WithLabelValues("rejected").Inc()
	s.audit(principal, domain.AuditTransferFailed, domain.AuditStatusFailed,
		fmt.Sprintf("Failed transfer: %v", err))
	return &TransferError{Reference: ref, Err: err}
}

func (s *TransferService) unavailable(ref string, err error) error {
	transfersTotal.WithLabelValues("unavailable").Inc()
	s.logger.Error("transfer storage failure", "reference", ref, "error", err)
	if !errors.Is(err, domain.ErrStorageUnavailable) && ctxErr(err) == nil {
		err = fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return &TransferError{Reference: ref, Err: err}
}

func ctxErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return nil
}

func (s *TransferService) audit(principal uuid.UUID, action, status, description string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Audit(domain.AuditEntry{
		UserID:      principal,
		Action:      action,
		Description: description,
		Status:      status,
	})
}

func (s *TransferService) alert(a domain.SecurityAlert) {
	if s.notifier == nil {
		return
	}
	s.notifier.Alert(a)
}
