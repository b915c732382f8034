/*
Package sqlite provides a SQLite-backed implementation of the ledger storage
interfaces.

PURPOSE:
  Implements ledger.Store and ledger.ItemStore using SQLite. The same
  statements work on PostgreSQL with only minor dialect differences.

INTERFACES IMPLEMENTED:
  ledger.Store:     Units of work and committed reads
  ledger.ItemStore: Item catalog maintenance

KEY TABLES:
  items:             Catalog, code is unique
  transactions:      Headers, UNIQUE(kind, custom_id)
  transaction_lines: Owned lines, FK CASCADE to transactions,
                     FK RESTRICT to items

UNIT OF WORK:
  WithUnit opens one database transaction. Every operation on the Unit runs
  on that transaction. fn error = rollback; commit failure = rollback +
  TransientStorageError.

ERROR MAPPING:
  UNIQUE constraint      -> *ledger.ConflictError
  FOREIGN KEY constraint -> *ledger.IntegrityError
  BUSY / LOCKED          -> *ledger.TransientStorageError
  context deadline       -> *ledger.TransientStorageError

DECIMALS:
  Quantities, rates and amounts are stored as TEXT and round-trip exactly.

MIGRATION:
  Schema is versioned with goose. Embedded migrations run on New().

USAGE:
  store, err := sqlite.New("./data/stock.db", log)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  reader := ledger.NewReader(store, log)
  writer := ledger.NewWriter(store, reader, log)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/stock-ledger/ledger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements ledger.Store and ledger.ItemStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens the database at dsn and applies pending migrations.
// Use ":memory:" for an in-memory database. log may be nil.
func New(dsn string, log logrus.FieldLogger) (*Store, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dsn+sep+"_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer, and ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if err := migrate(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func migrate(db *sql.DB, log logrus.FieldLogger) error {
	goose.SetBaseFS(migrations)
	if log != nil {
		goose.SetLogger(log)
	} else {
		goose.SetLogger(goose.NopLogger())
	}
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// =============================================================================
// UNIT OF WORK (ledger.Store interface)
// =============================================================================

// WithUnit executes fn within a database transaction.
func (s *Store) WithUnit(ctx context.Context, fn func(u ledger.Unit) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&unit{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return &ledger.TransientStorageError{Op: "commit", Err: err}
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type unit struct {
	tx *sql.Tx
}

func (u *unit) FindItemByID(ctx context.Context, id ledger.ItemID) (*ledger.Item, error) {
	return findItem(ctx, u.tx, id)
}

func (u *unit) InsertHeader(ctx context.Context, h ledger.Header, total decimal.Decimal, at time.Time) (ledger.TransactionID, error) {
	query := `
		INSERT INTO transactions
		(kind, custom_id, date, party, reference_no, received_by, warehouse_location,
		 issued_by, notes, total_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	stamp := at.UTC().Format(time.RFC3339Nano)
	res, err := u.tx.ExecContext(ctx, query,
		string(h.Kind),
		h.CustomID,
		h.Date.String(),
		h.Party,
		nullString(h.ReferenceNo),
		nullString(h.ReceivedBy),
		nullString(h.WarehouseLocation),
		nullString(h.IssuedBy),
		nullString(h.Notes),
		total.String(),
		stamp,
		stamp,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, &ledger.ConflictError{Field: "transaction_id", Value: h.CustomID}
		}
		return 0, classify("insert transaction", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, classify("insert transaction", err)
	}
	return ledger.TransactionID(id), nil
}

func (u *unit) UpdateHeader(ctx context.Context, id ledger.TransactionID, h ledger.Header, total decimal.Decimal, at time.Time) error {
	query := `
		UPDATE transactions
		SET kind = ?, custom_id = ?, date = ?, party = ?, reference_no = ?, received_by = ?,
		    warehouse_location = ?, issued_by = ?, notes = ?, total_amount = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := u.tx.ExecContext(ctx, query,
		string(h.Kind),
		h.CustomID,
		h.Date.String(),
		h.Party,
		nullString(h.ReferenceNo),
		nullString(h.ReceivedBy),
		nullString(h.WarehouseLocation),
		nullString(h.IssuedBy),
		nullString(h.Notes),
		total.String(),
		at.UTC().Format(time.RFC3339Nano),
		int64(id),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ConflictError{Field: "transaction_id", Value: h.CustomID}
		}
		return classify("update transaction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Resource: "transaction", ID: strconv.FormatInt(int64(id), 10)}
	}
	return nil
}

// DeleteHeader relies on ON DELETE CASCADE to remove the lines.
func (u *unit) DeleteHeader(ctx context.Context, id ledger.TransactionID) (bool, error) {
	res, err := u.tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", int64(id))
	if err != nil {
		return false, classify("delete transaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("delete transaction", err)
	}
	return n > 0, nil
}

func (u *unit) InsertLine(ctx context.Context, id ledger.TransactionID, l ledger.Line) error {
	query := `
		INSERT INTO transaction_lines (transaction_id, item_id, position, quantity, rate, amount)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := u.tx.ExecContext(ctx, query,
		int64(id),
		string(l.ItemID),
		l.Position,
		l.Quantity.String(),
		l.Rate.String(),
		l.Amount.String(),
	)
	if err != nil {
		return classify("insert line", err)
	}
	return nil
}

func (u *unit) DeleteLinesForHeader(ctx context.Context, id ledger.TransactionID) error {
	if _, err := u.tx.ExecContext(ctx, "DELETE FROM transaction_lines WHERE transaction_id = ?", int64(id)); err != nil {
		return classify("delete lines", err)
	}
	return nil
}

func (u *unit) FindHeaderByID(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	row := u.tx.QueryRowContext(ctx, selectHeader+" WHERE id = ?", int64(id))
	tx, err := scanHeader(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find transaction", err)
	}
	return &tx, nil
}

// =============================================================================
// READS
// =============================================================================

const selectHeader = `
	SELECT id, kind, custom_id, date, party, reference_no, received_by, warehouse_location,
	       issued_by, notes, total_amount, created_at, updated_at
	FROM transactions`

const selectLines = `
	SELECT transaction_id, item_id, position, quantity, rate, amount
	FROM transaction_lines`

func (s *Store) FindItemByID(ctx context.Context, id ledger.ItemID) (*ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findItem(ctx, s.db, id)
}

func (s *Store) LoadTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectHeader+" WHERE id = ?", int64(id))
	tx, err := scanHeader(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("load transaction", err)
	}

	lines, err := s.queryLines(ctx, selectLines+" WHERE transaction_id = ? ORDER BY position, id", int64(id))
	if err != nil {
		return nil, err
	}
	tx.Lines = lines[tx.ID]
	return &tx, nil
}

// LoadTransactions reads all headers and all lines in two queries and
// stitches them together.
func (s *Store) LoadTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectHeader+" ORDER BY date, id")
	if err != nil {
		return nil, classify("load transactions", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanHeader(rows)
		if err != nil {
			return nil, classify("load transactions", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("load transactions", err)
	}
	rows.Close()

	lines, err := s.queryLines(ctx, selectLines+" ORDER BY transaction_id, position, id")
	if err != nil {
		return nil, err
	}
	for i := range txs {
		txs[i].Lines = lines[txs[i].ID]
	}
	return txs, nil
}

func (s *Store) queryLines(ctx context.Context, query string, args ...any) (map[ledger.TransactionID][]ledger.Line, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("load lines", err)
	}
	defer rows.Close()

	out := make(map[ledger.TransactionID][]ledger.Line)
	for rows.Next() {
		var (
			txID   int64
			itemID string
			l      ledger.Line
		)
		if err := rows.Scan(&txID, &itemID, &l.Position, &l.Quantity, &l.Rate, &l.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		l.ItemID = ledger.ItemID(itemID)
		out[ledger.TransactionID(txID)] = append(out[ledger.TransactionID(txID)], l)
	}
	return out, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanHeader(row scanner) (ledger.Transaction, error) {
	var (
		tx                ledger.Transaction
		id                int64
		kind              string
		date              string
		referenceNo       sql.NullString
		receivedBy        sql.NullString
		warehouseLocation sql.NullString
		issuedBy          sql.NullString
		notes             sql.NullString
		createdAt         string
		updatedAt         string
	)

	err := row.Scan(
		&id, &kind, &tx.CustomID, &date, &tx.Party,
		&referenceNo, &receivedBy, &warehouseLocation, &issuedBy, &notes,
		&tx.TotalAmount, &createdAt, &updatedAt,
	)
	if err != nil {
		return tx, err
	}

	tx.ID = ledger.TransactionID(id)
	tx.Kind = ledger.Kind(kind)
	tx.Date, err = ledger.ParseDate(date)
	if err != nil {
		return tx, fmt.Errorf("transaction %d: %w", id, err)
	}
	tx.ReferenceNo = referenceNo.String
	tx.ReceivedBy = receivedBy.String
	tx.WarehouseLocation = warehouseLocation.String
	tx.IssuedBy = issuedBy.String
	tx.Notes = notes.String
	tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	tx.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return tx, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transaction_lines", "transactions", "items"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return classify("reset", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name IN ('transactions', 'transaction_lines')"); err != nil {
		return classify("reset", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// classify maps driver errors onto the ledger error taxonomy.
func classify(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			return &ledger.IntegrityError{Reason: op + ": foreign key constraint failed", Err: err}
		case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked, se.Code == sqlite3.ErrInterrupt:
			return &ledger.TransientStorageError{Op: op, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrBadConn) {
		return &ledger.TransientStorageError{Op: op, Err: err}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// isPrimaryKeyError reports a primary key collision on column (table.column).
// A TEXT primary key is a unique index, so the message is checked as well as
// the extended code.
func isPrimaryKeyError(err error, column string) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || strings.HasSuffix(se.Error(), column)
}

var (
	_ ledger.Store     = (*Store)(nil)
	_ ledger.ItemStore = (*Store)(nil)
	_ queryer          = (*sql.DB)(nil)
	_ queryer          = (*sql.Tx)(nil)
)
