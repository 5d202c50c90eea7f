package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"collectwise/internal/account"
	"collectwise/internal/storage"
)

func init() {
	storage.Register("mssql", New)
}

// Store implements storage.AccountStore for Microsoft SQL Server.
//
// Upserts are a single MERGE ... WITH (HOLDLOCK) so two writers racing on a
// new key cannot both take the insert branch. Every statement autocommits,
// so Flush is a no-op.
type Store struct {
	db *sql.DB

	mu sync.Mutex

	once    sync.Once
	initErr error
	ready   atomic.Bool

	now func() time.Time
}

var _ storage.AccountStore = (*Store)(nil)

// New opens a database/sql pool with the "sqlserver" driver and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.AccountStore, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	s.once.Do(func() {
		ddl, err := buildCreateSQL(storage.AccountsTable)
		if err != nil {
			s.initErr = err
			return
		}
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			s.initErr = fmt.Errorf("mssql: create table: %w", err)
			return
		}
		s.ready.Store(true)
	})
	return s.initErr
}

var mergeSQL = buildMergeSQL(storage.AccountsTable.Name, storage.InsertColumns, storage.MutableColumns, "account_number")

var selectByKeySQL = fmt.Sprintf(`SELECT %s FROM %s WHERE %s = @p1`,
	joinIdentList(storage.SelectColumns), mssqlTableIdent(storage.AccountsTable.Name), mssqlIdent("account_number"))

func (s *Store) Upsert(ctx context.Context, a account.Account) error {
	if !s.ready.Load() {
		return storage.ErrNotInitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	args := append(storage.Fields(a), now, now)
	if _, err := s.db.ExecContext(ctx, mergeSQL, args...); err != nil {
		return fmt.Errorf("mssql: upsert %q: %w", a.AccountNumber, err)
	}
	return nil
}

func (s *Store) FindByKey(ctx context.Context, key string) (account.Account, error) {
	if !s.ready.Load() {
		return account.Account{}, storage.ErrNotInitialized
	}

	var (
		a                          account.Account
		debtor, phone, status, cli sql.NullString
		balance                    string
	)
	err := s.db.QueryRowContext(ctx, selectByKeySQL, key).Scan(
		&a.AccountNumber, &debtor, &phone, &balance, &status, &cli, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, storage.ErrNotFound
	}
	if err != nil {
		return account.Account{}, fmt.Errorf("mssql: find %q: %w", key, err)
	}
	a.DebtorName = storage.StringPtr(debtor)
	a.PhoneNumber = storage.StringPtr(phone)
	a.Status = storage.StringPtr(status)
	a.ClientName = storage.StringPtr(cli)
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
	q := `SELECT COUNT_BIG(*) FROM ` + mssqlTableIdent(storage.AccountsTable.Name)
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("mssql: count: %w", err)
	}
	return n, nil
}

// Flush is a no-op; statements autocommit.
func (s *Store) Flush(context.Context) error {
	if !s.ready.Load() {
		return storage.ErrNotInitialized
	}
	return nil
}
