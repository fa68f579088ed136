package domain

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits stored for every amount.
const MoneyScale = 2

var referencePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateAmount checks that amount is positive, has at most two fractional
// digits and does not exceed max. A zero max disables the ceiling.
func ValidateAmount(amount, max decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be greater than 0", ErrInvalidAmount)
	}
	if !amount.Equal(amount.Round(MoneyScale)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, MoneyScale)
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return fmt.Errorf("%w: exceeds maximum transfer limit of %s", ErrInvalidAmount, max.StringFixed(MoneyScale))
	}
	return nil
}

// ValidateReference checks a client supplied reference number.
func ValidateReference(ref string) error {
	if !referencePattern.MatchString(ref) {
		return fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return nil
}

// NewReference generates a system reference number such as TXN1A2B3C4D5E6F.
func NewReference() string {
	id := uuid.New()
	return "TXN" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
}

// NewAccountNumber generates a human facing account number: "SL" followed by ten digits.
func NewAccountNumber() string {
	id := uuid.New()
	digits := new(big.Int).SetBytes(id[:]).String()
	for len(digits) < 10 {
		digits = "0" + digits
	}
	return "SL" + digits[:10]
}
