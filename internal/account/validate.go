package account

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Raw is one input row before validation. A nil field means the column was
// absent from the header or the row was too short to reach it.
type Raw struct {
	AccountNumber *string
	DebtorName    *string
	PhoneNumber   *string
	Balance       *string
	Status        *string
	ClientName    *string
}

// RawFromValues maps values aligned to Columns onto a Raw. Non-string values
// are formatted with %v; nil stays nil. Extra values are ignored.
func RawFromValues(v []any) Raw {
	at := func(i int) *string {
		if i >= len(v) || v[i] == nil {
			return nil
		}
		switch t := v[i].(type) {
		case string:
			return &t
		default:
			s := fmt.Sprint(t)
			return &s
		}
	}
	return Raw{
		AccountNumber: at(0),
		DebtorName:    at(1),
		PhoneNumber:   at(2),
		Balance:       at(3),
		Status:        at(4),
		ClientName:    at(5),
	}
}

// Result is the outcome of validating one row. Exactly one of Account and
// Errors is populated.
type Result struct {
	OK      bool
	Account *Account
	Errors  []string
}

// Validate normalizes raw into an Account or returns the row's defects.
//
// line is the 1-based line number in the source (header included) and is
// embedded in every defect so callers can map errors back to the file.
//
// Rules, first failure wins:
//  1. account_number must be non-empty after trimming.
//  2. balance, when non-blank, must be a finite decimal no larger than the
//     float64 range with at most 64 fractional digits; blank means 0.
//  3. Remaining fields are trimmed; blank becomes nil.
//
// Validate performs no I/O and is deterministic.
func Validate(raw Raw, line int) Result {
	key := trimmed(raw.AccountNumber)
	if key == nil {
		return reject(fmt.Sprintf("Row %d: Missing required field '%s'", line, ColAccountNumber))
	}

	balance := decimal.Zero
	if b := trimmed(raw.Balance); b != nil {
		d, err := decimal.NewFromString(*b)
		if err != nil || !inRange(d) {
			return reject(fmt.Sprintf("Row %d: Invalid balance '%s' - must be numeric", line, *raw.Balance))
		}
		if !d.IsZero() {
			balance = d
		}
	}

	return Result{
		OK: true,
		Account: &Account{
			AccountNumber: *key,
			DebtorName:    trimmed(raw.DebtorName),
			PhoneNumber:   trimmed(raw.PhoneNumber),
			Balance:       balance,
			Status:        trimmed(raw.Status),
			ClientName:    trimmed(raw.ClientName),
		},
	}
}

// Balance bounds. maxIntDigits admits every finite float64; maxScale caps
// fractional digits.
const (
	maxIntDigits = 309
	maxScale     = 64
)

// inRange reports whether d is a finite balance within the bounds above.
// Zero is always in range, whatever its exponent.
func inRange(d decimal.Decimal) bool {
	if d.IsZero() {
		return true
	}
	exp := int64(d.Exponent())
	if exp < -maxScale || int64(d.NumDigits())+exp > maxIntDigits {
		return false
	}
	f, _ := d.Float64()
	return !math.IsInf(f, 0)
}

func reject(msg string) Result {
	return Result{Errors: []string{msg}}
}

// trimmed returns a new pointer to the trimmed value, or nil when s is nil or
// blank. The input is never aliased.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
