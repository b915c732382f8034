package stock

import (
	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// RUNNING BALANCE - Cumulative signed total for ledger statements
// =============================================================================

// RunningBalance accumulates transaction totals in the order they are
// presented: inward adds, outward subtracts. Each transaction's balance is
// computed once and memoized by identity; asking again returns the cached
// value without touching the running total.
//
// Feed transactions in chronological order. Not safe for concurrent use.
type RunningBalance struct {
	running decimal.Decimal
	memo    map[ledger.TransactionID]decimal.Decimal
	order   []ledger.TransactionID
}

func NewRunningBalance() *RunningBalance {
	return &RunningBalance{
		running: decimal.Zero,
		memo:    make(map[ledger.TransactionID]decimal.Decimal),
	}
}

// For returns the balance after tx.
func (rb *RunningBalance) For(tx ledger.Transaction) decimal.Decimal {
	if b, ok := rb.memo[tx.ID]; ok {
		return b
	}
	rb.running = rb.running.Add(tx.SignedTotal())
	rb.memo[tx.ID] = rb.running
	rb.order = append(rb.order, tx.ID)
	return rb.running
}

// Lookup returns the memoized balance for id, if it has been computed.
func (rb *RunningBalance) Lookup(id ledger.TransactionID) (decimal.Decimal, bool) {
	b, ok := rb.memo[id]
	return b, ok
}

// Current is the balance after the last transaction seen.
func (rb *RunningBalance) Current() decimal.Decimal {
	return rb.running
}

// Len is the number of distinct transactions seen.
func (rb *RunningBalance) Len() int {
	return len(rb.order)
}

// Row pairs a transaction with its post-transaction balance.
type Row struct {
	Transaction ledger.Transaction
	Balance     decimal.Decimal
}

// RunningBalances sorts txs chronologically and returns one row per
// transaction. txs is not modified.
func RunningBalances(txs []ledger.Transaction) []Row {
	sorted := append([]ledger.Transaction(nil), txs...)
	ledger.SortOldestFirst(sorted)

	rb := NewRunningBalance()
	rows := make([]Row, 0, len(sorted))
	for _, tx := range sorted {
		rows = append(rows, Row{Transaction: tx, Balance: rb.For(tx)})
	}
	return rows
}
