// Package store provides an in-memory ledger.Store for tests and development.
package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	state state
}

type state struct {
	items     map[ledger.ItemID]ledger.Item
	headers   map[ledger.TransactionID]ledger.Transaction
	lines     map[ledger.TransactionID][]ledger.Line
	customIDs map[customKey]ledger.TransactionID
	nextID    ledger.TransactionID
}

type customKey struct {
	Kind     ledger.Kind
	CustomID string
}

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

func newState() state {
	return state{
		items:     make(map[ledger.ItemID]ledger.Item),
		headers:   make(map[ledger.TransactionID]ledger.Transaction),
		lines:     make(map[ledger.TransactionID][]ledger.Line),
		customIDs: make(map[customKey]ledger.TransactionID),
		nextID:    1,
	}
}

// clone deep-copies the state so a unit can be rolled back.
func (s state) clone() state {
	c := newState()
	c.nextID = s.nextID
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.headers {
		c.headers[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = append([]ledger.Line(nil), v...)
	}
	for k, v := range s.customIDs {
		c.customIDs[k] = v
	}
	return c
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithUnit runs fn against a private copy of the state and swaps it in on
// success. On error the copy is dropped, which is the rollback.
func (m *Memory) WithUnit(ctx context.Context, fn func(u ledger.Unit) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&unit{s: &work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &ledger.TransientStorageError{Op: "commit", Err: err}
	}
	m.state = work
	return nil
}

type unit struct {
	s *state
}

func (u *unit) FindItemByID(_ context.Context, id ledger.ItemID) (*ledger.Item, error) {
	item, ok := u.s.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (u *unit) InsertHeader(ctx context.Context, h ledger.Header, total decimal.Decimal, at time.Time) (ledger.TransactionID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	k := customKey{Kind: h.Kind, CustomID: h.CustomID}
	if _, exists := u.s.customIDs[k]; exists {
		return 0, &ledger.ConflictError{Field: "transaction_id", Value: h.CustomID}
	}
	id := u.s.nextID
	u.s.nextID++
	u.s.headers[id] = ledger.Transaction{ID: id, Header: h, TotalAmount: total, CreatedAt: at, UpdatedAt: at}
	u.s.customIDs[k] = id
	return id, nil
}

func (u *unit) UpdateHeader(ctx context.Context, id ledger.TransactionID, h ledger.Header, total decimal.Decimal, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	existing, ok := u.s.headers[id]
	if !ok {
		return &ledger.NotFoundError{Resource: "transaction", ID: strconv.FormatInt(int64(id), 10)}
	}
	k := customKey{Kind: h.Kind, CustomID: h.CustomID}
	if other, exists := u.s.customIDs[k]; exists && other != id {
		return &ledger.ConflictError{Field: "transaction_id", Value: h.CustomID}
	}
	delete(u.s.customIDs, customKey{Kind: existing.Kind, CustomID: existing.CustomID})
	u.s.customIDs[k] = id

	existing.Header = h
	existing.TotalAmount = total
	existing.UpdatedAt = at
	u.s.headers[id] = existing
	return nil
}

func (u *unit) DeleteHeader(_ context.Context, id ledger.TransactionID) (bool, error) {
	existing, ok := u.s.headers[id]
	if !ok {
		return false, nil
	}
	delete(u.s.headers, id)
	delete(u.s.lines, id)
	delete(u.s.customIDs, customKey{Kind: existing.Kind, CustomID: existing.CustomID})
	return true, nil
}

func (u *unit) InsertLine(ctx context.Context, id ledger.TransactionID, line ledger.Line) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := u.s.headers[id]; !ok {
		return &ledger.IntegrityError{Reason: "line references missing transaction " + strconv.FormatInt(int64(id), 10)}
	}
	if _, ok := u.s.items[line.ItemID]; !ok {
		return &ledger.IntegrityError{Reason: "line references missing item " + string(line.ItemID)}
	}
	line.ItemCode, line.ItemName = "", ""
	u.s.lines[id] = append(u.s.lines[id], line)
	return nil
}

func (u *unit) DeleteLinesForHeader(_ context.Context, id ledger.TransactionID) error {
	delete(u.s.lines, id)
	return nil
}

func (u *unit) FindHeaderByID(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	h, ok := u.s.headers[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) FindItemByID(_ context.Context, id ledger.ItemID) (*ledger.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.state.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *Memory) LoadTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.state.headers[id]
	if !ok {
		return nil, nil
	}
	tx := m.assemble(h)
	return &tx, nil
}

func (m *Memory) LoadTransactions(_ context.Context) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Transaction, 0, len(m.state.headers))
	for _, h := range m.state.headers {
		out = append(out, m.assemble(h))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// assemble copies the owned lines so callers cannot mutate stored state.
func (m *Memory) assemble(h ledger.Transaction) ledger.Transaction {
	h.Lines = append([]ledger.Line(nil), m.state.lines[h.ID]...)
	return h
}

// LineCount returns how many lines are stored for id. Used by tests to
// observe storage directly, bypassing the Reader.
func (m *Memory) LineCount(id ledger.TransactionID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.lines[id])
}

// HeaderCount returns the number of stored headers.
func (m *Memory) HeaderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.headers)
}

// =============================================================================
// ITEM STORE
// =============================================================================

func (m *Memory) SaveItem(_ context.Context, item ledger.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.state.items {
		if existing.Code == item.Code && existing.ID != item.ID {
			return &ledger.ConflictError{Field: "code", Value: item.Code}
		}
	}
	if _, exists := m.state.items[item.ID]; exists {
		return &ledger.ConflictError{Field: "id", Value: string(item.ID)}
	}
	m.state.items[item.ID] = item
	return nil
}

func (m *Memory) ListItems(_ context.Context) ([]ledger.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Item, 0, len(m.state.items))
	for _, item := range m.state.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// DeleteItem refuses while any line references the item (restrict-delete).
func (m *Memory) DeleteItem(_ context.Context, id ledger.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.items[id]; !ok {
		return &ledger.NotFoundError{Resource: "item", ID: string(id)}
	}
	for txID, lines := range m.state.lines {
		for _, l := range lines {
			if l.ItemID == id {
				return &ledger.IntegrityError{
					Reason: "item " + string(id) + " is referenced by transaction " + strconv.FormatInt(int64(txID), 10),
				}
			}
		}
	}
	delete(m.state.items, id)
	return nil
}

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = newState()
	return nil
}

// ForceDeleteItem removes an item without the restrict check. It simulates
// a catalog change made outside the ledger, so tests can exercise
// placeholder enrichment.
func (m *Memory) ForceDeleteItem(id ledger.ItemID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.items, id)
}
