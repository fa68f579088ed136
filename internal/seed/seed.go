// Package seed names the deterministic users and accounts created by
// cmd/seeder, so cmd/benchmark can address them without reading the database.
package seed

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/shopspring/decimal"
)

var namespace = uuid.MustParse("6f1c2a7e-4b0d-4e55-9a53-2f1d8b7c9e10")

func UserID(i int) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("user-%d", i)))
}

func AccountID(i int) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("account-%d", i)))
}

// AccountNumber returns SL followed by i padded to ten digits.
func AccountNumber(i int) string {
	return fmt.Sprintf("SL%010d", i)
}

func Email(i int) string {
	return fmt.Sprintf("user%d@seed.local", i)
}

func Phone(i int) string {
	return fmt.Sprintf("+25263%07d", i)
}

// Account returns the i-th seeded account. CreatedAt is offset by i
// milliseconds from base so each user's primary account is well defined.
func Account(i int, balance decimal.Decimal, base time.Time) domain.Account {
	return domain.Account{
		ID:        AccountID(i),
		Number:    AccountNumber(i),
		UserID:    UserID(i),
		Balance:   balance,
		Type:      domain.AccountSavings,
		Status:    domain.AccountActive,
		CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
	}
}
