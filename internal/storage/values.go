package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"collectwise/internal/account"
)

// NullString converts an optional field to a driver value; nil stays NULL.
func NullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// StringPtr converts a scanned nullable column back to an optional field.
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// ParseBalance parses a stored balance. Stored values were produced by
// decimal.String, so a parse failure means the table was edited out of band.
func ParseBalance(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("storage: corrupt balance %q: %w", s, err)
	}
	return d, nil
}

// Fields returns a's field values in account.Columns order, ready to bind.
func Fields(a account.Account) []any {
	return []any{
		a.AccountNumber,
		NullString(a.DebtorName),
		NullString(a.PhoneNumber),
		a.Balance.String(),
		NullString(a.Status),
		NullString(a.ClientName),
	}
}
