// Package account defines the account record and the row validator that turns
// one raw input row into a normalized Account.
package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// Column names recognized in the input header, in canonical order.
const (
	ColAccountNumber = "account_number"
	ColDebtorName    = "debtor_name"
	ColPhoneNumber   = "phone_number"
	ColBalance       = "balance"
	ColStatus        = "status"
	ColClientName    = "client_name"
)

// Columns is the positional layout parsers align their rows to.
var Columns = []string{
	ColAccountNumber,
	ColDebtorName,
	ColPhoneNumber,
	ColBalance,
	ColStatus,
	ColClientName,
}

// Account is a single debtor account keyed by AccountNumber.
//
// Optional text fields are nil when the input had no value; they are never
// defaulted to "". Balance defaults to zero. CreatedAt and UpdatedAt are
// owned by the store and ignored on write.
type Account struct {
	AccountNumber string
	DebtorName    *string
	PhoneNumber   *string
	Balance       decimal.Decimal
	Status        *string
	ClientName    *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SameFields reports whether a and b carry the same key and mutable field
// values. Timestamps are not compared.
func SameFields(a, b Account) bool {
	return a.AccountNumber == b.AccountNumber &&
		eqPtr(a.DebtorName, b.DebtorName) &&
		eqPtr(a.PhoneNumber, b.PhoneNumber) &&
		a.Balance.Equal(b.Balance) &&
		eqPtr(a.Status, b.Status) &&
		eqPtr(a.ClientName, b.ClientName)
}

func eqPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Ptr returns a pointer to s. Handy for building accounts in tests and fixtures.
func Ptr(s string) *string { return &s }
