/*
Package ledger provides the transaction ledger for inventory movement.

PURPOSE:
  Items flow into stock through inward (purchase) transactions and out of
  stock through outward (sale) transactions. Each transaction is a header
  plus an ordered set of owned lines. This package validates lines, writes
  a header and its lines as one atomic unit of work, and reads them back
  as a single aggregate.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind: inward or outward, the only difference is the sign on stock
  - Item: catalog entry referenced by lines (read-only to the ledger)
  - Line: item, quantity, rate and the server-derived amount
  - Transaction: header + lines + server-derived total

DESIGN PRINCIPLES:
  1. Precision: quantities, rates and amounts are decimal.Decimal
  2. Derived values: Amount and TotalAmount are always recomputed, never trusted
  3. Ownership: lines have no identity outside their transaction
  4. Replace-all: an update swaps the whole line set

SEE ALSO:
  - validate.go: Line Item Validator
  - writer.go: Ledger Writer (create/update/delete)
  - reader.go: Ledger Reader (get/list with catalog enrichment)
  - store.go: Storage collaborator interfaces
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// KIND - Direction of stock movement
// =============================================================================

// Kind identifies which way a transaction moves stock.
type Kind string

const (
	KindInward  Kind = "inward"  // receipt from a supplier (invert)
	KindOutward Kind = "outward" // issue to a customer (outvert)
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindInward || k == KindOutward
}

// ParseKind accepts the canonical names plus the legacy invert/outvert spellings.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inward", "invert", "in":
		return KindInward, true
	case "outward", "outvert", "out":
		return KindOutward, true
	}
	return "", false
}

// Sign returns +1 for inward and -1 for outward.
func (k Kind) Sign() decimal.Decimal {
	if k == KindOutward {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID string
type TransactionID int64

// =============================================================================
// ITEM - Catalog entry
// =============================================================================

// Item is a catalog entry. Prices are reference values only; the rate on a
// line is what the transaction actually used.
type Item struct {
	ID            ItemID
	Code          string
	Name          string
	PurchasePrice decimal.Decimal
	SellingPrice  decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// =============================================================================
// LINE - One item movement inside a transaction
// =============================================================================

type Line struct {
	ItemID   ItemID
	Quantity decimal.Decimal
	Rate     decimal.Decimal
	Amount   decimal.Decimal

	// Position is the insertion order within the parent transaction.
	Position int

	// Filled by the Reader from the current catalog. Not persisted.
	ItemCode string
	ItemName string
}

// =============================================================================
// TRANSACTION - Header plus owned lines
// =============================================================================

// Header holds the caller-supplied fields of a transaction.
type Header struct {
	Kind        Kind
	CustomID    string // human-facing id, unique per Kind (e.g. "INV-0001")
	Date        Date
	Party       string // supplier for inward, customer for outward
	ReferenceNo string

	ReceivedBy        string // inward
	WarehouseLocation string // inward
	IssuedBy          string // outward
	Notes             string
}

type Transaction struct {
	ID TransactionID
	Header
	Lines       []Line
	TotalAmount decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SignedTotal is TotalAmount with the sign of the transaction's kind.
func (t Transaction) SignedTotal() decimal.Decimal {
	return t.TotalAmount.Mul(t.Kind.Sign())
}

// SumLines returns the sum of line amounts.
func SumLines(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// =============================================================================
// FILTER - Optional criteria for listing transactions
// =============================================================================

// Filter narrows a transaction listing. Zero values match everything.
// Text criteria are case-insensitive substring matches.
type Filter struct {
	Kind        Kind
	From        *Date
	To          *Date
	Party       string
	Item        string // matches line item code or name
	ReferenceNo string
}

// Period returns the date bounds of f.
func (f Filter) Period() Period {
	return Period{Start: f.From, End: f.To}
}

// Matches reports whether tx satisfies every criterion in f.
// Item matching relies on lines already being enriched with code and name.
func (f Filter) Matches(tx Transaction) bool {
	if f.Kind != "" && tx.Kind != f.Kind {
		return false
	}
	if !f.Period().Contains(tx.Date) {
		return false
	}
	if f.Party != "" && !containsFold(tx.Party, f.Party) {
		return false
	}
	if f.ReferenceNo != "" && !containsFold(tx.ReferenceNo, f.ReferenceNo) {
		return false
	}
	if f.Item != "" {
		found := false
		for _, l := range tx.Lines {
			if containsFold(l.ItemCode, f.Item) || containsFold(l.ItemName, f.Item) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
