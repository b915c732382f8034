package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Placeholders shown for lines whose item was removed from the catalog.
const (
	PlaceholderItemCode = "?"
	PlaceholderItemName = "(deleted item)"
)

// =============================================================================
// LEDGER READER
// =============================================================================

// Reader reconstitutes transactions from storage and enriches their lines
// with the current catalog code and name.
type Reader struct {
	Store Store
	Log   logrus.FieldLogger
}

func NewReader(store Store, log logrus.FieldLogger) *Reader {
	return &Reader{Store: store, Log: log}
}

// Get returns one transaction or a *NotFoundError.
func (r *Reader) Get(ctx context.Context, id TransactionID) (*Transaction, error) {
	tx, err := r.Store.LoadTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %d: %w", id, err)
	}
	if tx == nil {
		return nil, &NotFoundError{Resource: "transaction", ID: strconv.FormatInt(int64(id), 10)}
	}

	cache := make(map[ItemID]*Item)
	r.enrich(ctx, tx, func(id ItemID) *Item {
		if item, ok := cache[id]; ok {
			return item
		}
		item, err := r.Store.FindItemByID(ctx, id)
		if err != nil {
			r.Log.WithError(err).WithField("item_id", id).Warn("item lookup failed, using placeholder")
			item = nil
		}
		cache[id] = item
		return item
	})
	return tx, nil
}

// List returns all transactions matching f, ordered by date descending, then
// identity descending; lines keep insertion order.
func (r *Reader) List(ctx context.Context, f Filter) ([]Transaction, error) {
	txs, err := r.Store.LoadTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	out := make([]Transaction, 0, len(txs))
	for _, tx := range r.Enrich(ctx, txs) {
		if f.Matches(tx) {
			out = append(out, tx)
		}
	}

	SortNewestFirst(out)
	return out, nil
}

// Enrich fills line item code and name from one catalog snapshot. txs is
// modified in place and returned.
func (r *Reader) Enrich(ctx context.Context, txs []Transaction) []Transaction {
	catalog := make(map[ItemID]*Item)
	items, err := r.Store.ListItems(ctx)
	if err != nil {
		// Reads stay available without the catalog; every line degrades.
		r.Log.WithError(err).Warn("catalog unavailable, lines will use placeholders")
	}
	for i := range items {
		catalog[items[i].ID] = &items[i]
	}

	for i := range txs {
		r.enrich(ctx, &txs[i], func(id ItemID) *Item { return catalog[id] })
	}
	return txs
}

func (r *Reader) enrich(_ context.Context, tx *Transaction, lookup func(ItemID) *Item) {
	sort.SliceStable(tx.Lines, func(i, j int) bool {
		return tx.Lines[i].Position < tx.Lines[j].Position
	})
	for i := range tx.Lines {
		item := lookup(tx.Lines[i].ItemID)
		if item == nil {
			tx.Lines[i].ItemCode = PlaceholderItemCode
			tx.Lines[i].ItemName = PlaceholderItemName
			continue
		}
		tx.Lines[i].ItemCode = item.Code
		tx.Lines[i].ItemName = item.Name
	}
}

// SortNewestFirst orders by date descending, then identity descending.
func SortNewestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].ID > txs[j].ID
	})
}

// SortOldestFirst orders by date ascending, then identity ascending. This is
// the processing order for replaying the ledger.
func SortOldestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].ID < txs[j].ID
	})
}
