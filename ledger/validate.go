package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LINE ITEM VALIDATOR
// =============================================================================

// Accepted range for quantities, rates and prices: at most 28 places either
// side of the decimal point and a 128-bit coefficient.
const (
	MaxDecimalExponent = 28
	maxCoefficientBits = 128
)

// WithinPrecision reports whether d is inside the accepted range. Values
// outside it are rejected before any arithmetic or formatting touches them.
func WithinPrecision(d decimal.Decimal) bool {
	if exp := d.Exponent(); exp > MaxDecimalExponent || exp < -MaxDecimalExponent {
		return false
	}
	return d.Coefficient().BitLen() <= maxCoefficientBits
}

// ValidateLine checks a proposed line against the catalog and returns it with
// Amount recomputed as Quantity × Rate. A caller-supplied Amount is discarded;
// a mismatch is corrected silently, not reported.
//
// index is the line's position in the request and is echoed in errors.
func ValidateLine(ctx context.Context, index int, line Line, catalog Catalog) (Line, error) {
	if strings.TrimSpace(string(line.ItemID)) == "" {
		return Line{}, &ValidationError{Code: CodeItemNotFound, Field: "item_id", Line: index, Message: "item id is required"}
	}
	if !WithinPrecision(line.Quantity) {
		return Line{}, &ValidationError{Code: CodeInvalidQuantity, Field: "quantity", Line: index, Message: "quantity is out of range"}
	}
	if !line.Quantity.IsPositive() {
		return Line{}, &ValidationError{Code: CodeInvalidQuantity, Field: "quantity", Line: index,
			Message: fmt.Sprintf("quantity must be greater than zero, got %s", line.Quantity)}
	}
	if !WithinPrecision(line.Rate) {
		return Line{}, &ValidationError{Code: CodeInvalidRate, Field: "rate", Line: index, Message: "rate is out of range"}
	}
	if line.Rate.IsNegative() {
		return Line{}, &ValidationError{Code: CodeInvalidRate, Field: "rate", Line: index,
			Message: fmt.Sprintf("rate must not be negative, got %s", line.Rate)}
	}

	item, err := catalog.FindItemByID(ctx, line.ItemID)
	if err != nil {
		return Line{}, fmt.Errorf("failed to look up item %s: %w", line.ItemID, err)
	}
	if item == nil {
		return Line{}, &ValidationError{Code: CodeItemNotFound, Field: "item_id", Line: index,
			Message: fmt.Sprintf("item %s not found", line.ItemID)}
	}

	return Line{
		ItemID:   line.ItemID,
		Quantity: line.Quantity,
		Rate:     line.Rate,
		Amount:   line.Quantity.Mul(line.Rate),
		Position: index,
		ItemCode: item.Code,
		ItemName: item.Name,
	}, nil
}

// ValidateLines validates a whole line set and returns the validated lines
// and their total. The set must be non-empty.
func ValidateLines(ctx context.Context, lines []Line, catalog Catalog) ([]Line, decimal.Decimal, error) {
	if len(lines) == 0 {
		return nil, decimal.Zero, headerError(CodeNoLines, "lines", "a transaction needs at least one line")
	}

	validated := make([]Line, 0, len(lines))
	for i, l := range lines {
		v, err := ValidateLine(ctx, i, l, catalog)
		if err != nil {
			return nil, decimal.Zero, err
		}
		validated = append(validated, v)
	}
	return validated, SumLines(validated), nil
}

// ValidateHeader checks the required header fields and normalizes whitespace.
func ValidateHeader(h Header) (Header, error) {
	if !h.Kind.Valid() {
		return Header{}, headerError(CodeInvalidKind, "type", fmt.Sprintf("unknown transaction type %q", h.Kind))
	}
	h.CustomID = strings.TrimSpace(h.CustomID)
	if h.CustomID == "" {
		return Header{}, headerError(CodeMissingField, "transaction_id", "transaction id is required")
	}
	if h.Date.IsZero() {
		return Header{}, headerError(CodeMissingField, "date", "date is required")
	}
	h.Party = strings.TrimSpace(h.Party)
	if h.Party == "" {
		return Header{}, headerError(CodeMissingField, "party", "party is required")
	}
	h.ReferenceNo = strings.TrimSpace(h.ReferenceNo)
	h.ReceivedBy = strings.TrimSpace(h.ReceivedBy)
	h.IssuedBy = strings.TrimSpace(h.IssuedBy)
	h.WarehouseLocation = strings.TrimSpace(h.WarehouseLocation)
	h.Notes = strings.TrimSpace(h.Notes)
	return h, nil
}
