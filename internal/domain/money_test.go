package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateAmount(t *testing.T) {
	max := decimal.NewFromInt(1000000)

	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{name: "positive", amount: "1000.00"},
		{name: "at ceiling", amount: "1000000"},
		{name: "one cent", amount: "0.01"},
		{name: "zero", amount: "0", wantErr: true},
		{name: "negative", amount: "-100.00", wantErr: true},
		{name: "above ceiling", amount: "1000000.01", wantErr: true},
		{name: "sub-cent precision", amount: "10.001", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(decimal.RequireFromString(tt.amount), max)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAmountWithoutCeiling(t *testing.T) {
	assert.NoError(t, ValidateAmount(decimal.NewFromInt(5000000000), decimal.Zero))
}

func TestValidateReference(t *testing.T) {
	assert.NoError(t, ValidateReference("TEST001"))
	assert.NoError(t, ValidateReference("order_42-retry"))
	assert.ErrorIs(t, ValidateReference(""), ErrInvalidReference)
	assert.ErrorIs(t, ValidateReference("has space"), ErrInvalidReference)
	assert.ErrorIs(t, ValidateReference(string(make([]byte, 65))), ErrInvalidReference)
}

func TestNewReference(t *testing.T) {
	ref := NewReference()
	assert.Len(t, ref, 15)
	assert.Regexp(t, `^TXN[0-9A-F]{12}$`, ref)
	assert.NoError(t, ValidateReference(ref))
	assert.NotEqual(t, ref, NewReference())
}

func TestNewAccountNumber(t *testing.T) {
	assert.Regexp(t, `^SL[0-9]{10}$`, NewAccountNumber())
}

func TestTransactionErr(t *testing.T) {
	completed := &Transaction{Status: TransactionCompleted}
	assert.NoError(t, completed.Err())

	failed := &Transaction{Status: TransactionFailed, FailureReason: ReasonInsufficientBalance}
	assert.ErrorIs(t, failed.Err(), ErrInsufficientBalance)

	inactive := &Transaction{Status: TransactionFailed, FailureReason: ReasonReceiverInactive}
	assert.ErrorIs(t, inactive.Err(), ErrReceiverNotFound)

	unknown := &Transaction{Status: TransactionFailed, FailureReason: "SOMETHING_ELSE"}
	assert.ErrorIs(t, unknown.Err(), ErrTransferFailed)
}

func TestAccountTypeValid(t *testing.T) {
	assert.True(t, AccountSavings.Valid())
	assert.True(t, AccountBusiness.Valid())
	assert.False(t, AccountType("CHECKING").Valid())
}
