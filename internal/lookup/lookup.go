// Package lookup answers point queries against the account store.
package lookup

import (
	"context"
	"errors"
	"strings"

	"collectwise/internal/account"
	"collectwise/internal/storage"
)

// ErrEmptyKey is returned for a key that is empty after trimming. It is a
// caller error, not a store miss.
var ErrEmptyKey = errors.New("lookup: account number is required")

// Service is the read side of the store.
type Service struct {
	Store storage.AccountStore
}

// New returns a Service reading from st.
func New(st storage.AccountStore) *Service {
	return &Service{Store: st}
}

// Lookup trims key and returns the matching account. Keys match exactly,
// case included. A miss is storage.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, key string) (account.Account, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return account.Account{}, ErrEmptyKey
	}
	return s.Store.FindByKey(ctx, key)
}

// Count returns the number of stored accounts.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.Store.Count(ctx)
}
