package seed

import (
	"testing"
	"time"

	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDeterministicIdentities(t *testing.T) {
	assert.Equal(t, UserID(7), UserID(7))
	assert.NotEqual(t, UserID(7), UserID(8))
	assert.NotEqual(t, UserID(7), AccountID(7))
	assert.Equal(t, "SL0000000042", AccountNumber(42))
	assert.Regexp(t, `^SL\d{10}$`, AccountNumber(999))
}

func TestAccount(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	acc := Account(3, decimal.NewFromInt(10000), base)

	assert.Equal(t, AccountID(3), acc.ID)
	assert.Equal(t, UserID(3), acc.UserID)
	assert.Equal(t, "SL0000000003", acc.Number)
	assert.Equal(t, "10000", acc.Balance.String())
	assert.Equal(t, domain.AccountActive, acc.Status)
	assert.Equal(t, domain.AccountSavings, acc.Type)
	assert.True(t, Account(2, decimal.Zero, base).CreatedAt.Before(acc.CreatedAt))
}
