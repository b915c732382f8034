/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in ledger/ and stock/ from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Transactions:
    TransactionRequest, LineRequest, TransactionDTO, LineDTO

  Stock:
    StockDTO, StockPositionDTO

  Reports:
    LedgerReportDTO, LedgerRowDTO, LedgerSummaryDTO

  Items:
    CreateItemRequest, ItemDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

DECIMALS:
  Quantities, rates and amounts are rendered as JSON strings ("12.5") so no
  precision is lost in transit. Requests accept either a number or a string.

VALIDATION:
  Shape checks (required fields, non-empty lines) use validator struct tags.
  Value checks (quantity > 0, rate >= 0, item exists) stay in
  ledger.ValidateLine so every entry point applies the same rules.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: ErrorResponse and status mapping
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionRequest is the body of POST and PUT /api/transactions.
type TransactionRequest struct {
	Type              string        `json:"type" validate:"required,ledgerkind"`
	TransactionID     string        `json:"transaction_id" validate:"required"`
	Date              string        `json:"date" validate:"required"`
	Party             string        `json:"party" validate:"required"`
	ReferenceNo       string        `json:"reference_no"`
	ReceivedBy        string        `json:"received_by"`
	WarehouseLocation string        `json:"warehouse_location"`
	IssuedBy          string        `json:"issued_by"`
	Notes             string        `json:"notes"`
	Lines             []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// LineRequest keeps numbers raw so a non-numeric quantity is reported as
// invalid_quantity instead of a generic decode failure.
type LineRequest struct {
	ItemID   string          `json:"item_id"`
	Quantity json.RawMessage `json:"quantity"`
	Rate     json.RawMessage `json:"rate"`
	Amount   json.RawMessage `json:"amount,omitempty"` // ignored, always recomputed
}

// toDomain converts the request into a header and lines. Only decoding
// errors are reported here; value rules belong to the ledger validator.
func (r TransactionRequest) toDomain() (ledger.Header, []ledger.Line, error) {
	kind, ok := ledger.ParseKind(r.Type)
	if !ok {
		return ledger.Header{}, nil, &ledger.ValidationError{
			Code: ledger.CodeInvalidKind, Field: "type", Line: -1,
			Message: fmt.Sprintf("unknown transaction type %q", r.Type),
		}
	}
	date, err := ledger.ParseDate(r.Date)
	if err != nil {
		return ledger.Header{}, nil, &ledger.ValidationError{
			Code: ledger.CodeInvalidDate, Field: "date", Line: -1, Message: err.Error(),
		}
	}

	h := ledger.Header{
		Kind:              kind,
		CustomID:          r.TransactionID,
		Date:              date,
		Party:             r.Party,
		ReferenceNo:       r.ReferenceNo,
		ReceivedBy:        r.ReceivedBy,
		WarehouseLocation: r.WarehouseLocation,
		IssuedBy:          r.IssuedBy,
		Notes:             r.Notes,
	}

	lines := make([]ledger.Line, 0, len(r.Lines))
	for i, l := range r.Lines {
		qty, err := parseDecimal(l.Quantity)
		if err != nil {
			return ledger.Header{}, nil, &ledger.ValidationError{
				Code: ledger.CodeInvalidQuantity, Field: "quantity", Line: i, Message: "quantity " + err.Error(),
			}
		}
		rate, err := parseDecimal(l.Rate)
		if err != nil {
			return ledger.Header{}, nil, &ledger.ValidationError{
				Code: ledger.CodeInvalidRate, Field: "rate", Line: i, Message: "rate " + err.Error(),
			}
		}
		lines = append(lines, ledger.Line{ItemID: ledger.ItemID(l.ItemID), Quantity: qty, Rate: rate})
	}
	return h, lines, nil
}

// parseDecimal accepts a JSON number or a JSON string holding a number.
func parseDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, fmt.Errorf("is required")
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, fmt.Errorf("is not a number")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", s)
	}
	return d, nil
}

type LineDTO struct {
	ItemID   string          `json:"item_id"`
	ItemCode string          `json:"item_code"`
	ItemName string          `json:"item_name"`
	Quantity decimal.Decimal `json:"quantity"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
}

type TransactionDTO struct {
	ID                int64           `json:"id"`
	Type              string          `json:"type"`
	TransactionID     string          `json:"transaction_id"`
	Date              ledger.Date     `json:"date"`
	Party             string          `json:"party"`
	ReferenceNo       string          `json:"reference_no,omitempty"`
	ReceivedBy        string          `json:"received_by,omitempty"`
	WarehouseLocation string          `json:"warehouse_location,omitempty"`
	IssuedBy          string          `json:"issued_by,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	Lines             []LineDTO       `json:"lines"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	CreatedAt         string          `json:"created_at,omitempty"`
	UpdatedAt         string          `json:"updated_at,omitempty"`
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:                int64(tx.ID),
		Type:              string(tx.Kind),
		TransactionID:     tx.CustomID,
		Date:              tx.Date,
		Party:             tx.Party,
		ReferenceNo:       tx.ReferenceNo,
		ReceivedBy:        tx.ReceivedBy,
		WarehouseLocation: tx.WarehouseLocation,
		IssuedBy:          tx.IssuedBy,
		Notes:             tx.Notes,
		Lines:             make([]LineDTO, 0, len(tx.Lines)),
		TotalAmount:       tx.TotalAmount,
		CreatedAt:         formatTime(tx.CreatedAt),
		UpdatedAt:         formatTime(tx.UpdatedAt),
	}
	for _, l := range tx.Lines {
		dto.Lines = append(dto.Lines, LineDTO{
			ItemID:   string(l.ItemID),
			ItemCode: l.ItemCode,
			ItemName: l.ItemName,
			Quantity: l.Quantity,
			Rate:     l.Rate,
			Amount:   l.Amount,
		})
	}
	return dto
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, toTransactionDTO(tx))
	}
	return dtos
}

// =============================================================================
// STOCK
// =============================================================================

type StockPositionDTO struct {
	ItemID              string          `json:"item_id"`
	ItemCode            string          `json:"item_code"`
	ItemName            string          `json:"item_name"`
	OnHandQuantity      decimal.Decimal `json:"on_hand_quantity"`
	LastKnownRate       decimal.Decimal `json:"last_known_rate"`
	OnHandValue         decimal.Decimal `json:"on_hand_value"`
	Status              string          `json:"status"`
	LastTransactionDate ledger.Date     `json:"last_transaction_date"`
}

type StockDTO struct {
	AsOf              *ledger.Date       `json:"as_of"`
	LowStockThreshold decimal.Decimal    `json:"low_stock_threshold"`
	Positions         []StockPositionDTO `json:"positions"`
	TotalQuantity     decimal.Decimal    `json:"total_quantity"`
	TotalValue        decimal.Decimal    `json:"total_value"`
	LowStockCount     int                `json:"low_stock_count"`
	OutOfStockCount   int                `json:"out_of_stock_count"`
	SkippedLines      int                `json:"skipped_lines"`
}

func toStockDTO(s stock.Snapshot) StockDTO {
	dto := StockDTO{
		AsOf:              s.AsOf,
		LowStockThreshold: s.LowStockThreshold,
		Positions:         make([]StockPositionDTO, 0, len(s.Positions)),
		TotalQuantity:     s.TotalQuantity,
		TotalValue:        s.TotalValue,
		LowStockCount:     s.LowStockCount,
		OutOfStockCount:   s.OutOfStockCount,
		SkippedLines:      s.SkippedLines,
	}
	for _, p := range s.Positions {
		dto.Positions = append(dto.Positions, StockPositionDTO{
			ItemID:              string(p.ItemID),
			ItemCode:            p.ItemCode,
			ItemName:            p.ItemName,
			OnHandQuantity:      p.OnHandQuantity,
			LastKnownRate:       p.LastKnownRate,
			OnHandValue:         p.OnHandValue,
			Status:              string(p.Status),
			LastTransactionDate: p.LastTransactionDate,
		})
	}
	return dto
}

// =============================================================================
// REPORTS
// =============================================================================

type LedgerRowDTO struct {
	Transaction TransactionDTO  `json:"transaction"`
	Balance     decimal.Decimal `json:"balance"`
}

type LedgerSummaryDTO struct {
	InwardCount  int             `json:"inward_count"`
	InwardTotal  decimal.Decimal `json:"inward_total"`
	OutwardCount int             `json:"outward_count"`
	OutwardTotal decimal.Decimal `json:"outward_total"`
	NetValue     decimal.Decimal `json:"net_value"`
}

type LedgerReportDTO struct {
	Rows    []LedgerRowDTO   `json:"rows"`
	Summary LedgerSummaryDTO `json:"summary"`
}

func toLedgerReportDTO(r stock.Report) LedgerReportDTO {
	dto := LedgerReportDTO{
		Rows: make([]LedgerRowDTO, 0, len(r.Rows)),
		Summary: LedgerSummaryDTO{
			InwardCount:  r.Summary.InwardCount,
			InwardTotal:  r.Summary.InwardTotal,
			OutwardCount: r.Summary.OutwardCount,
			OutwardTotal: r.Summary.OutwardTotal,
			NetValue:     r.Summary.NetValue,
		},
	}
	for _, row := range r.Rows {
		dto.Rows = append(dto.Rows, LedgerRowDTO{
			Transaction: toTransactionDTO(row.Transaction),
			Balance:     row.Balance,
		})
	}
	return dto
}

// =============================================================================
// ITEMS
// =============================================================================

// CreateItemRequest creates a catalog entry. ID is generated when omitted.
type CreateItemRequest struct {
	ID            string          `json:"id"`
	Code          string          `json:"code" validate:"required"`
	Name          string          `json:"name" validate:"required"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
}

type ItemDTO struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	CreatedAt     string          `json:"created_at,omitempty"`
}

func toItemDTO(item ledger.Item) ItemDTO {
	return ItemDTO{
		ID:            string(item.ID),
		Code:          item.Code,
		Name:          item.Name,
		PurchasePrice: item.PurchasePrice,
		SellingPrice:  item.SellingPrice,
		CreatedAt:     formatTime(item.CreatedAt),
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
