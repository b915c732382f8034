/*
Package stock derives stock-on-hand and running balances from the ledger.

PURPOSE:
  Stock is never stored. Every request replays the full ordered transaction
  history and projects it into per-item positions. There is no stock table
  that can drift away from the ledger.

STOCK-ON-HAND ALGORITHM:
  1. Keep transactions with date <= AsOf (inclusive). No AsOf = all.
  2. Sort ascending by date, then identity. Later rates overwrite earlier.
  3. Per item accumulator {qty: 0, rate: 0}:
       inward:  qty += quantity; if rate > 0 then rate = line rate
       outward: qty = max(0, qty - quantity)
     LastTransactionDate is set on every touch.
  4. value = qty × rate
     status = OutOfStock if qty <= 0
              LowStock   if 0 < qty < threshold
              InStock    otherwise
  5. Totals are sums over positions.

CLAMPING:
  An outward movement larger than recorded stock is clamped to zero, not
  rejected. This is a reporting tolerance, not a ledger integrity check.

BEST EFFORT:
  Malformed lines (no item, non-positive quantity, negative rate) are
  skipped with a warning. The report still renders for the valid data.

DETERMINISM:
  Same transactions + same options = identical Snapshot, including order.

SEE ALSO:
  - balance.go: Running balance for ledger statements
  - report.go:  Filtered ledger report with summary
*/
package stock

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/stock-ledger/ledger"
)

// DefaultLowStockThreshold applies when Options.LowStockThreshold is zero.
var DefaultLowStockThreshold = decimal.NewFromInt(10)

// =============================================================================
// TYPES
// =============================================================================

type Status string

const (
	StatusInStock    Status = "in_stock"
	StatusLowStock   Status = "low_stock"
	StatusOutOfStock Status = "out_of_stock"
)

// Position is the derived stock of one item.
type Position struct {
	ItemID              ledger.ItemID
	ItemCode            string
	ItemName            string
	OnHandQuantity      decimal.Decimal
	LastKnownRate       decimal.Decimal
	OnHandValue         decimal.Decimal
	Status              Status
	LastTransactionDate ledger.Date
}

type Options struct {
	AsOf              *ledger.Date
	LowStockThreshold decimal.Decimal
}

// Snapshot is the full stock-on-hand result.
type Snapshot struct {
	AsOf              *ledger.Date
	LowStockThreshold decimal.Decimal
	Positions         []Position
	TotalQuantity     decimal.Decimal
	TotalValue        decimal.Decimal
	LowStockCount     int
	OutOfStockCount   int
	SkippedLines      int
}

// Observer receives one call per aggregation.
type Observer interface {
	ObserveAggregation(elapsed time.Duration, skippedLines int)
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Log      logrus.FieldLogger
	Observer Observer
}

func NewEngine(log logrus.FieldLogger) *Engine {
	return &Engine{Log: log}
}

// StockOnHand replays txs and returns the stock position of every item
// touched on or before opts.AsOf. txs is not modified.
func (e *Engine) StockOnHand(txs []ledger.Transaction, opts Options) Snapshot {
	start := time.Now()

	threshold := opts.LowStockThreshold
	if !threshold.IsPositive() {
		threshold = DefaultLowStockThreshold
	}

	window := ledger.Period{End: opts.AsOf}
	selected := make([]ledger.Transaction, 0, len(txs))
	for _, tx := range txs {
		if window.Contains(tx.Date) {
			selected = append(selected, tx)
		}
	}
	ledger.SortOldestFirst(selected)

	acc := make(map[ledger.ItemID]*Position)
	skipped := 0
	for _, tx := range selected {
		if !tx.Kind.Valid() {
			e.warn(tx, -1, "unknown transaction kind")
			skipped += len(tx.Lines)
			continue
		}
		for i, l := range tx.Lines {
			if reason := malformed(l); reason != "" {
				e.warn(tx, i, reason)
				skipped++
				continue
			}

			p, ok := acc[l.ItemID]
			if !ok {
				p = &Position{ItemID: l.ItemID, OnHandQuantity: decimal.Zero, LastKnownRate: decimal.Zero}
				acc[l.ItemID] = p
			}
			if l.ItemCode != "" {
				p.ItemCode, p.ItemName = l.ItemCode, l.ItemName
			}

			switch tx.Kind {
			case ledger.KindInward:
				p.OnHandQuantity = p.OnHandQuantity.Add(l.Quantity)
				if l.Rate.IsPositive() {
					p.LastKnownRate = l.Rate
				}
			case ledger.KindOutward:
				p.OnHandQuantity = decimal.Max(decimal.Zero, p.OnHandQuantity.Sub(l.Quantity))
			}
			p.LastTransactionDate = tx.Date
		}
	}

	snap := Snapshot{
		AsOf:              opts.AsOf,
		LowStockThreshold: threshold,
		Positions:         make([]Position, 0, len(acc)),
		TotalQuantity:     decimal.Zero,
		TotalValue:        decimal.Zero,
		SkippedLines:      skipped,
	}
	for _, p := range acc {
		p.OnHandValue = p.OnHandQuantity.Mul(p.LastKnownRate)
		p.Status = statusFor(p.OnHandQuantity, threshold)
		switch p.Status {
		case StatusLowStock:
			snap.LowStockCount++
		case StatusOutOfStock:
			snap.OutOfStockCount++
		}
		snap.TotalQuantity = snap.TotalQuantity.Add(p.OnHandQuantity)
		snap.TotalValue = snap.TotalValue.Add(p.OnHandValue)
		snap.Positions = append(snap.Positions, *p)
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		a, b := snap.Positions[i], snap.Positions[j]
		if a.ItemCode != b.ItemCode {
			return a.ItemCode < b.ItemCode
		}
		return a.ItemID < b.ItemID
	})

	if e.Observer != nil {
		e.Observer.ObserveAggregation(time.Since(start), skipped)
	}
	return snap
}

func statusFor(qty, threshold decimal.Decimal) Status {
	switch {
	case !qty.IsPositive():
		return StatusOutOfStock
	case qty.LessThan(threshold):
		return StatusLowStock
	default:
		return StatusInStock
	}
}

func malformed(l ledger.Line) string {
	switch {
	case l.ItemID == "":
		return "line has no item"
	case !l.Quantity.IsPositive():
		return "line quantity is not positive"
	case l.Rate.IsNegative():
		return "line rate is negative"
	}
	return ""
}

func (e *Engine) warn(tx ledger.Transaction, line int, reason string) {
	if e.Log == nil {
		return
	}
	e.Log.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"custom_id":      tx.CustomID,
		"line":           line,
	}).Warn("skipping line in stock aggregation: " + reason)
}
