// Package idempotency makes sure a reference number is applied at most once.
//
// The storage layer's unique constraint on reference_number is the source of
// truth. The Guard sits in front of it: it answers replays from a cache or the
// ledger, and collapses concurrent in-process executions of the same reference
// so only one of them reaches the account locks.
package idempotency

import (
	"context"
	"errors"
	"log/slog"

	"github.com/punchamoorthee/acidbank/internal/cache"
	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/punchamoorthee/acidbank/internal/store"
	"golang.org/x/sync/singleflight"
)

// Finder looks up the record committed for a reference.
type Finder interface {
	FindByReference(ctx context.Context, reference string) (*domain.Transaction, error)
}

// OutcomeCache is an optional read-through cache of terminal outcomes.
type OutcomeCache interface {
	Get(ctx context.Context, reference string) (*domain.Transaction, error)
	Set(ctx context.Context, txn *domain.Transaction) error
}

type Guard struct {
	finder Finder
	cache  OutcomeCache
	logger *slog.Logger
	flight singleflight.Group
}

// NewGuard builds a guard. cache may be nil.
func NewGuard(finder Finder, cache OutcomeCache, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{finder: finder, cache: cache, logger: logger}
}

// FindExisting returns the stored outcome for reference, or nil when the
// reference has never been committed.
func (g *Guard) FindExisting(ctx context.Context, reference string) (*domain.Transaction, error) {
	if g.cache != nil {
		txn, err := g.cache.Get(ctx, reference)
		if err == nil {
			return txn, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			g.logger.Warn("reference cache read failed", "reference", reference, "error", err)
		}
	}

	txn, err := g.finder.FindByReference(ctx, reference)
	if errors.Is(err, store.ErrTransactionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	g.Remember(ctx, txn)
	return txn, nil
}

// Remember caches a committed outcome. Cache failures are only logged.
func (g *Guard) Remember(ctx context.Context, txn *domain.Transaction) {
	if g.cache == nil || txn == nil {
		return
	}
	if err := g.cache.Set(ctx, txn); err != nil {
		g.logger.Warn("reference cache write failed", "reference", txn.Reference, "error", err)
	}
}

// Do runs fn once for all concurrent callers using the same reference.
// Callers that did not run fn get a copy of the leader's result marked as a replay.
func (g *Guard) Do(reference string, fn func() (*store.CommitResult, error)) (*store.CommitResult, error) {
	// fn runs in the leader's goroutine, so ran is only ever set by the leader.
	ran := false
	v, err, _ := g.flight.Do(reference, func() (any, error) {
		ran = true
		return fn()
	})
	if err != nil {
		return nil, err
	}
	res := v.(*store.CommitResult)
	if ran {
		return res, nil
	}

	cp := *res
	txn := *res.Transaction
	cp.Transaction = &txn
	cp.Replayed = true
	return &cp, nil
}
