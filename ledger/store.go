/*
store.go - Storage collaborator interfaces

PURPOSE:
  Defines the only operations the ledger needs from storage. The ledger is
  storage-agnostic: a relational store (store/sqlite) and an in-memory store
  (ledger/store) both satisfy these interfaces.

KEY INTERFACES:
  Catalog:   Item lookup (existence checks and enrichment)
  Unit:      Operations scoped to one open unit of work
  Store:     Opens units of work and loads committed transactions
  ItemStore: Minimal catalog maintenance used by the API and scenarios

UNIT OF WORK:
  Store.WithUnit(ctx, fn) is beginUnit + commit/rollback in one call:
  - fn returns nil:   commit
  - fn returns error: explicit rollback, then the error is returned
  - commit fails:     rollback, TransientStorageError
  Nothing written inside fn is visible to other readers until commit.

NOT FOUND CONVENTION:
  Find* methods return (nil, nil) when the row does not exist. Errors are
  reserved for storage failures.

SEE ALSO:
  - writer.go: Uses Unit for atomic writes
  - store/sqlite/sqlite.go: Relational implementation
  - ledger/store/memory.go: In-memory implementation
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Catalog resolves item identifiers.
type Catalog interface {
	FindItemByID(ctx context.Context, id ItemID) (*Item, error)
}

// Unit is a set of storage operations that commit or roll back together.
type Unit interface {
	Catalog

	// InsertHeader stores a new header and returns its generated identity.
	// Returns *ConflictError if (Kind, CustomID) already exists.
	InsertHeader(ctx context.Context, h Header, total decimal.Decimal, at time.Time) (TransactionID, error)

	// UpdateHeader overwrites header fields and total for id.
	UpdateHeader(ctx context.Context, id TransactionID, h Header, total decimal.Decimal, at time.Time) error

	// DeleteHeader removes the header and, by ownership, its lines.
	// Returns false if nothing was deleted.
	DeleteHeader(ctx context.Context, id TransactionID) (bool, error)

	// InsertLine stores one line for the header id.
	InsertLine(ctx context.Context, id TransactionID, line Line) error

	// DeleteLinesForHeader removes every line owned by id.
	DeleteLinesForHeader(ctx context.Context, id TransactionID) error

	// FindHeaderByID returns the header row (without lines).
	FindHeaderByID(ctx context.Context, id TransactionID) (*Transaction, error)
}

// Store opens units of work and reads committed state.
type Store interface {
	Catalog

	// WithUnit executes fn within one atomic unit of work.
	WithUnit(ctx context.Context, fn func(u Unit) error) error

	// LoadTransaction returns the header and its lines, or nil if absent.
	// Lines are in insertion order and not enriched.
	LoadTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// LoadTransactions returns every committed transaction with its lines.
	// No ordering is guaranteed; the Reader orders.
	LoadTransactions(ctx context.Context) ([]Transaction, error)

	// ListItems returns the whole catalog.
	ListItems(ctx context.Context) ([]Item, error)
}

// ItemStore maintains the catalog. The ledger itself never writes items.
type ItemStore interface {
	Catalog

	// SaveItem inserts a new item. Returns *ConflictError on duplicate code.
	SaveItem(ctx context.Context, item Item) error

	ListItems(ctx context.Context) ([]Item, error)

	// DeleteItem removes an item. Returns *IntegrityError while any line
	// references it and *NotFoundError if it does not exist.
	DeleteItem(ctx context.Context, id ItemID) error
}
