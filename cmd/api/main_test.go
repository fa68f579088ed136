package main

import (
	"context"
	"testing"
	"time"

	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/punchamoorthee/acidbank/internal/idempotency"
	"github.com/punchamoorthee/acidbank/internal/seed"
	"github.com/punchamoorthee/acidbank/internal/service"
	"github.com/punchamoorthee/acidbank/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedMemory_AllowsTransfers(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore(time.Second)
	require.NoError(t, seedMemory(mem, 3, decimal.NewFromInt(10000)))

	primary, err := mem.PrimaryAccount(ctx, seed.UserID(2))
	require.NoError(t, err)
	assert.Equal(t, seed.AccountNumber(2), primary.Number)

	svc := service.NewTransferService(mem, idempotency.NewGuard(mem, nil, nil), nil, service.DefaultLimits(), nil)
	out, err := svc.Execute(ctx, seed.UserID(1), domain.TransferRequest{
		ReceiverAccountNumber: seed.AccountNumber(3),
		Amount:                decimal.RequireFromString("1.00"),
		Reference:             "SEEDED1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionCompleted, out.Transaction.Status)

	sender, err := mem.GetAccountByNumber(ctx, seed.AccountNumber(1))
	require.NoError(t, err)
	assert.Equal(t, "9999.00", sender.Balance.StringFixed(domain.MoneyScale))
}

func TestSeedMemory_Zero(t *testing.T) {
	mem := store.NewMemoryStore(time.Second)
	require.NoError(t, seedMemory(mem, 0, decimal.NewFromInt(10000)))

	_, err := mem.GetAccountByNumber(context.Background(), seed.AccountNumber(1))
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestSeedMemory_Twice(t *testing.T) {
	mem := store.NewMemoryStore(time.Second)
	require.NoError(t, seedMemory(mem, 2, decimal.NewFromInt(10)))
	assert.Error(t, seedMemory(mem, 2, decimal.NewFromInt(10)))
}
