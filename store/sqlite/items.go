package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// ITEM STORE (ledger.ItemStore interface)
// =============================================================================

const selectItem = `
	SELECT id, code, name, purchase_price, selling_price, created_at, updated_at
	FROM items`

// SaveItem inserts a new catalog item.
func (s *Store) SaveItem(ctx context.Context, item ledger.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO items (id, code, name, purchase_price, selling_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		string(item.ID),
		item.Code,
		item.Name,
		item.PurchasePrice.String(),
		item.SellingPrice.String(),
		item.CreatedAt.UTC().Format(time.RFC3339Nano),
		item.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		switch {
		case isPrimaryKeyError(err, "items.id"):
			return &ledger.ConflictError{Field: "id", Value: string(item.ID)}
		case isUniqueConstraintError(err):
			return &ledger.ConflictError{Field: "code", Value: item.Code}
		}
		return classify("save item", err)
	}
	return nil
}

// ListItems returns the catalog ordered by code.
func (s *Store) ListItems(ctx context.Context) ([]ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectItem+" ORDER BY code")
	if err != nil {
		return nil, classify("list items", err)
	}
	defer rows.Close()

	var items []ledger.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, classify("list items", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteItem removes an item. The RESTRICT foreign key on
// transaction_lines refuses while any line references it.
func (s *Store) DeleteItem(ctx context.Context, id ledger.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", string(id))
	if err != nil {
		err = classify("delete item", err)
		var ierr *ledger.IntegrityError
		if errors.As(err, &ierr) {
			ierr.Reason = "item " + string(id) + " is referenced by transaction lines"
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Resource: "item", ID: string(id)}
	}
	return nil
}

func findItem(ctx context.Context, q queryer, id ledger.ItemID) (*ledger.Item, error) {
	row := q.QueryRowContext(ctx, selectItem+" WHERE id = ?", string(id))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find item", err)
	}
	return &item, nil
}

func scanItem(row scanner) (ledger.Item, error) {
	var (
		item      ledger.Item
		id        string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&id, &item.Code, &item.Name, &item.PurchasePrice, &item.SellingPrice, &createdAt, &updatedAt)
	if err != nil {
		return item, err
	}
	item.ID = ledger.ItemID(id)
	item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	item.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return item, nil
}
