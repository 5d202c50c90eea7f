package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"collectwise/internal/account"
)

var (
	// ErrNotFound is returned by FindByKey when no account has the key.
	ErrNotFound = errors.New("storage: account not found")

	// ErrNotInitialized is returned by every operation invoked before Init
	// completed successfully. It signals a sequencing bug, not missing data.
	ErrNotInitialized = errors.New("storage: store not initialized")
)

// Config is the minimal configuration needed to create a store.
//
// Edge cases:
//   - Kind must match a registered backend kind.
//   - DSN is passed through to the backend; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// AccountStore is the durable keyed account table.
//
// Contract shared by all backends:
//   - Exactly one row per AccountNumber, enforced by the backend's own unique
//     constraint.
//   - Upsert inserts or fully replaces the mutable fields of an existing row.
//     CreatedAt is fixed at first insert; UpdatedAt is refreshed on every call.
//   - FindByKey is an exact, case-sensitive match and returns ErrNotFound on a miss.
//   - Init loads prior persisted state (or starts empty). It runs once per
//     store; later and concurrent calls return the first call's result.
//   - Every other method returns ErrNotInitialized until Init has succeeded.
//   - Flush makes prior writes durable. Backends that persist on every write
//     implement it as a no-op and say so.
//   - Mutations (Upsert, Flush) are serialized store-wide; reads may run
//     concurrently with each other.
type AccountStore interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, a account.Account) error
	FindByKey(ctx context.Context, key string) (account.Account, error)
	Count(ctx context.Context) (int64, error)
	Flush(ctx context.Context) error
	Close() error
}

type factory func(ctx context.Context, cfg Config) (AccountStore, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under kind (e.g. "sqlite", "postgres").
//
// Call Register from an init() function in the backend package.
//
// Panics:
//   - If kind is empty or f is nil.
//   - If kind is already registered; ambiguous backend selection should fail fast.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a store using the registered backend factory. The returned
// store still needs Init.
func New(ctx context.Context, cfg Config) (AccountStore, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open is New followed by Init; the store is closed again if Init fails.
func Open(ctx context.Context, cfg Config) (AccountStore, error) {
	s, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("storage: init %s: %w", cfg.Kind, err)
	}
	return s, nil
}
