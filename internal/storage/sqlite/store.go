// Package sqlite is the default, embedded account store.
//
// The live table is an in-memory SQLite database held on a single connection.
// The durable form is an ordinary SQLite database file (the "image"):
//   - Init loads the image, if present, into memory.
//   - Flush writes the whole table to a temp file with VACUUM INTO and renames
//     it over the image, so a reader of the path sees either the old or the new
//     image, never a partial one.
//
// Flush policy: writes are NOT durable until Flush. The ingestion pipeline
// flushes once after its last row, so a crash mid-run loses that run's writes
// and leaves the previous image intact.
//
// Timestamps are stored as RFC3339Nano TEXT; modernc.org/sqlite has no native
// timestamp type and TEXT round-trips reliably.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"collectwise/internal/account"
	"collectwise/internal/storage"
)

func init() {
	storage.Register("sqlite", New)
}

// Store implements storage.AccountStore on an in-memory SQLite database.
type Store struct {
	db   *sql.DB
	path string // image path; empty means memory only

	// mu serializes Upsert and Flush against each other and against reads.
	mu sync.RWMutex

	once    sync.Once
	initErr error
	ready   atomic.Bool

	// now is a seam for tests; production uses time.Now.
	now func() time.Time
}

var _ storage.AccountStore = (*Store)(nil)

// New opens an empty in-memory database. cfg.DSN is the image path; "" or
// ":memory:" disables persistence (Flush becomes a no-op).
func New(ctx context.Context, cfg storage.Config) (storage.AccountStore, error) {
	return Open(ctx, cfg.DSN)
}

// Open is New with a concrete return type.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(strings.TrimPrefix(path, "file:"))
	if path == ":memory:" {
		path = ""
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" is a separate database, so the pool must
	// hold exactly one connection for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the image path ("" when memory only).
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

// Init creates the table and loads the image if one exists. Only the first
// call does any work; later calls return its result.
func (s *Store) Init(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.initErr = s.load(ctx)
		if s.initErr == nil {
			s.ready.Store(true)
		}
	})
	return s.initErr
}

func (s *Store) load(ctx context.Context) error {
	ddl, err := buildCreateTableSQL(storage.AccountsTable)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}

	if s.path == "" {
		return nil
	}
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("sqlite: stat image %s: %w", s.path, err)
	}
	return s.attachAndCopy(ctx)
}

// attachAndCopy copies the image's accounts table into memory. Images written
// by older tools may store balance as REAL and timestamps as
// "YYYY-MM-DD HH:MM:SS"; column affinity and parseSQLiteTime absorb both.
func (s *Store) attachAndCopy(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `ATTACH DATABASE ? AS image`, s.path); err != nil {
		return fmt.Errorf("sqlite: attach image %s: %w", s.path, err)
	}
	defer func() { _, _ = s.db.ExecContext(context.Background(), `DETACH DATABASE image`) }()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM image.sqlite_master WHERE type = 'table' AND name = ?`,
		storage.AccountsTable.Name,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("sqlite: inspect image %s: %w", s.path, err)
	}
	if n == 0 {
		return nil
	}

	cols := append([]string{storage.ColID}, storage.InsertColumns...)
	q := fmt.Sprintf(
		`INSERT INTO main.%s (%s) SELECT %s FROM image.%s`,
		sqlIdent(storage.AccountsTable.Name), joinIdentList(cols), joinIdentList(cols), sqlIdent(storage.AccountsTable.Name),
	)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("sqlite: load image %s: %w", s.path, err)
	}
	return nil
}

// Upsert inserts a or replaces the mutable fields of the existing row.
func (s *Store) Upsert(ctx context.Context, a account.Account) error {
	if !s.ready.Load() {
		return storage.ErrNotInitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatSQLiteTime(s.now())
	args := append(storage.Fields(a), now, now)
	if _, err := s.db.ExecContext(ctx, upsertSQL, args...); err != nil {
		return fmt.Errorf("sqlite: upsert %q: %w", a.AccountNumber, err)
	}
	return nil
}

var upsertSQL = buildUpsertSQL(storage.AccountsTable.Name, storage.InsertColumns, storage.MutableColumns, "account_number")

var selectByKeySQL = fmt.Sprintf(
	`SELECT %s FROM %s WHERE %s = ?`,
	joinIdentList(storage.SelectColumns), sqlIdent(storage.AccountsTable.Name), sqlIdent("account_number"),
)

// FindByKey returns the account with exactly this key.
func (s *Store) FindByKey(ctx context.Context, key string) (account.Account, error) {
	if !s.ready.Load() {
		return account.Account{}, storage.ErrNotInitialized
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		a                          account.Account
		debtor, phone, status, cli sql.NullString
		balance                    sql.NullString
		created, updated           sql.NullString
	)
	err := s.db.QueryRowContext(ctx, selectByKeySQL, key).Scan(
		&a.AccountNumber, &debtor, &phone, &balance, &status, &cli, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, storage.ErrNotFound
	}
	if err != nil {
		return account.Account{}, fmt.Errorf("sqlite: find %q: %w", key, err)
	}

	a.DebtorName = storage.StringPtr(debtor)
	a.PhoneNumber = storage.StringPtr(phone)
	a.Status = storage.StringPtr(status)
	a.ClientName = storage.StringPtr(cli)
	if a.Balance, err = storage.ParseBalance(balance.String); err != nil {
		return account.Account{}, err
	}
	if a.CreatedAt, err = parseSQLiteTime(created.String); err != nil {
		return account.Account{}, fmt.Errorf("sqlite: %s.created_at: %w", key, err)
	}
	if a.UpdatedAt, err = parseSQLiteTime(updated.String); err != nil {
		return account.Account{}, fmt.Errorf("sqlite: %s.updated_at: %w", key, err)
	}
	return a, nil
}

// Count returns the number of stored accounts.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if !s.ready.Load() {
		return 0, storage.ErrNotInitialized
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, sqlIdent(storage.AccountsTable.Name))
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// Flush replaces the image with the current table. A successful return means
// the data is recoverable by Init on restart. No-op for memory-only stores.
func (s *Store) Flush(ctx context.Context) error {
	if !s.ready.Load() {
		return storage.ErrNotInitialized
	}
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("sqlite: flush: %w", err)
		}
	}

	// VACUUM INTO refuses to overwrite, and the temp file must sit on the same
	// filesystem as the image for the rename to be atomic.
	tmp := s.path + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("sqlite: flush: clear %s: %w", tmp, err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("sqlite: flush: write image: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("sqlite: flush: replace image: %w", err)
	}
	return nil
}
