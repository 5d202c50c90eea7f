package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collectwise/internal/account"
	"collectwise/internal/storage"
)

/*
Store implements storage.AccountStore for Postgres.

Every Upsert is committed on return, so Flush is a no-op: a restart sees
every write that returned nil. Upserts are still serialized in-process to keep
the single-writer contract identical to the embedded backend.
*/
type Store struct {
	pool *pgxpool.Pool

	mu sync.Mutex

	once    sync.Once
	initErr error
	ready   atomic.Bool

	now func() time.Time
}

var _ storage.AccountStore = (*Store)(nil)

// New creates a pool for cfg.DSN. Connections are established lazily.
func New(ctx context.Context, cfg storage.Config) (storage.AccountStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Init creates the accounts table if missing.
func (s *Store) Init(ctx context.Context) error {
	s.once.Do(func() {
		schemaSQL, tableSQL, err := buildCreateSQL(storage.AccountsTable)
		if err != nil {
			s.initErr = err
			return
		}
		if schemaSQL != "" {
			if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
				s.initErr = fmt.Errorf("postgres: create schema: %w", err)
				return
			}
		}
		if _, err := s.pool.Exec(ctx, tableSQL); err != nil {
			s.initErr = fmt.Errorf("postgres: create table: %w", err)
			return
		}
		s.ready.Store(true)
	})
	return s.initErr
}

var upsertSQL = buildUpsertSQL(storage.AccountsTable.Name, storage.InsertColumns, storage.MutableColumns, "account_number")

var selectByKeySQL = fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
	joinIdentList(storage.SelectColumns), pgTable(storage.AccountsTable.Name), pgIdent("account_number"))

var countSQL = `SELECT COUNT(*) FROM ` + pgTable(storage.AccountsTable.Name)

func (s *Store) Upsert(ctx context.Context, a account.Account) error {
	if !s.ready.Load() {
		return storage.ErrNotInitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	args := append(storage.Fields(a), now, now)
	if _, err := s.pool.Exec(ctx, upsertSQL, args...); err != nil {
		return fmt.Errorf("postgres: upsert %q: %w", a.AccountNumber, err)
	}
	return nil
}

func (s *Store) FindByKey(ctx context.Context, key string) (account.Account, error) {
	if !s.ready.Load() {
		return account.Account{}, storage.ErrNotInitialized
	}

	var (
		a       account.Account
		balance string
	)
	err := s.pool.QueryRow(ctx, selectByKeySQL, key).Scan(
		&a.AccountNumber, &a.DebtorName, &a.PhoneNumber, &balance, &a.Status, &a.ClientName, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.Account{}, storage.ErrNotFound
	}
	if err != nil {
		return account.Account{}, fmt.Errorf("postgres: find %q: %w", key, err)
	}
	if a.Balance, err = storage.ParseBalance(balance); err != nil {
		return account.Account{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	if !s.ready.Load() {
		return 0, storage.ErrNotInitialized
	}
	var n int64
	if err := s.pool.QueryRow(ctx, countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

// Flush is a no-op; writes are durable on commit.
func (s *Store) Flush(context.Context) error {
	if !s.ready.Load() {
		return storage.ErrNotInitialized
	}
	return nil
}
