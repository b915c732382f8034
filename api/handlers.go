/*
handlers.go - HTTP API handlers for the stock ledger

PURPOSE:
  Exposes the transaction ledger and the stock aggregation engine via REST.
  Handles HTTP request/response and JSON serialization, and delegates to
  ledger.Writer, ledger.Reader and stock.Engine.

ENDPOINTS:
  Transactions:
    POST   /api/transactions           Create inward/outward transaction
    GET    /api/transactions           List (filters: type, from, to, party, item, reference)
    GET    /api/transactions/{id}      Get one transaction with lines
    PUT    /api/transactions/{id}      Replace header and all lines
    DELETE /api/transactions/{id}      Delete transaction and its lines

  Stock:
    GET    /api/stock                  Stock on hand (asOf, lowStockThreshold)

  Reports:
    GET    /api/reports/ledger         Chronological ledger with running balance

  Items:
    GET    /api/items                  List catalog
    POST   /api/items                  Create item
    GET    /api/items/{id}             Get item
    DELETE /api/items/{id}             Delete unreferenced item

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Persistence (ledger.Store + ledger.ItemStore)
  - Writer/Reader: Ledger operations
  - Engine: Stock aggregation

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate shape (validator tags)
  3. Call domain logic (writer validates values, then one unit of work)
  4. Serialize response
  5. Map errors to status (errors.go)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error to status mapping
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the API needs from persistence.
type Store interface {
	ledger.Store
	ledger.ItemStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  Store
	Reader *ledger.Reader
	Writer *ledger.Writer
	Engine *stock.Engine
	Log    logrus.FieldLogger

	// LowStockThreshold is used when the request does not pass one.
	LowStockThreshold decimal.Decimal

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the ledger and the engine around store.
func NewHandler(store Store, log logrus.FieldLogger) *Handler {
	reader := ledger.NewReader(store, log)
	return &Handler{
		Store:             store,
		Reader:            reader,
		Writer:            ledger.NewWriter(store, reader, log),
		Engine:            stock.NewEngine(log),
		Log:               log,
		LowStockThreshold: stock.DefaultLowStockThreshold,
		validate:          newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("ledgerkind", func(fl validator.FieldLevel) bool {
		_, ok := ledger.ParseKind(fl.Field().String())
		return ok
	})
	return v
}

// bind decodes the body into dst and applies its validator tags.
func (h *Handler) bind(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// CreateTransaction validates and stores a new transaction.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := h.bind(r, &req); err != nil {
		writeBindError(w, err)
		return
	}

	header, lines, err := req.toDomain()
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	tx, err := h.Writer.Create(r.Context(), header, lines)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// ListTransactions returns transactions newest first, optionally filtered.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	txs, err := h.Reader.List(r.Context(), filter)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetTransaction returns one transaction with enriched lines.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := transactionID(w, r)
	if !ok {
		return
	}

	tx, err := h.Reader.Get(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// UpdateTransaction replaces the header and the whole line set.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := transactionID(w, r)
	if !ok {
		return
	}

	var req TransactionRequest
	if err := h.bind(r, &req); err != nil {
		writeBindError(w, err)
		return
	}

	header, lines, err := req.toDomain()
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	tx, err := h.Writer.Update(r.Context(), id, header, lines)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// DeleteTransaction removes a transaction and its lines.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := transactionID(w, r)
	if !ok {
		return
	}

	if err := h.Writer.Delete(r.Context(), id); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "id": int64(id)})
}

// =============================================================================
// STOCK AND REPORT HANDLERS
// =============================================================================

// GetStock returns stock on hand, optionally as of a past date.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	opts := stock.Options{LowStockThreshold: h.LowStockThreshold}

	if s := r.URL.Query().Get("asOf"); s != "" {
		asOf, err := ledger.ParseDate(s)
		if err != nil {
			h.writeLedgerError(w, r, queryError(ledger.CodeInvalidDate, "asOf", err.Error()))
			return
		}
		opts.AsOf = &asOf
	}
	if s := r.URL.Query().Get("lowStockThreshold"); s != "" {
		threshold, err := decimal.NewFromString(s)
		if err != nil || !ledger.WithinPrecision(threshold) || threshold.IsNegative() {
			h.writeLedgerError(w, r, queryError(ledger.CodeInvalidQuantity, "lowStockThreshold",
				"lowStockThreshold must be a non-negative number"))
			return
		}
		opts.LowStockThreshold = threshold
	}

	txs, err := h.Store.LoadTransactions(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	// Positions carry the current catalog code and name.
	txs = h.Reader.Enrich(r.Context(), txs)

	writeJSON(w, http.StatusOK, toStockDTO(h.Engine.StockOnHand(txs, opts)))
}

// GetLedgerReport returns the filtered ledger oldest first with a running
// balance and inward/outward totals.
func (h *Handler) GetLedgerReport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	txs, err := h.Reader.List(r.Context(), ledger.Filter{})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toLedgerReportDTO(stock.LedgerReport(txs, filter)))
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

// ListItems returns the catalog ordered by code.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	dtos := make([]ItemDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, toItemDTO(item))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateItem adds a catalog entry.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := h.bind(r, &req); err != nil {
		writeBindError(w, err)
		return
	}

	for _, p := range []struct {
		field string
		price decimal.Decimal
	}{{"purchase_price", req.PurchasePrice}, {"selling_price", req.SellingPrice}} {
		if !ledger.WithinPrecision(p.price) || p.price.IsNegative() {
			h.writeLedgerError(w, r, queryError(ledger.CodeInvalidRate, p.field, p.field+" must be a non-negative number in range"))
			return
		}
	}

	now := time.Now().UTC()
	item := ledger.Item{
		ID:            ledger.ItemID(strings.TrimSpace(req.ID)),
		Code:          strings.TrimSpace(req.Code),
		Name:          strings.TrimSpace(req.Name),
		PurchasePrice: req.PurchasePrice,
		SellingPrice:  req.SellingPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if item.ID == "" {
		item.ID = ledger.ItemID(uuid.NewString())
	}

	if err := h.Store.SaveItem(r.Context(), item); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.Log.WithFields(logrus.Fields{"item_id": item.ID, "code": item.Code}).Info("item created")
	writeJSON(w, http.StatusCreated, toItemDTO(item))
}

// GetItem returns one catalog entry.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := ledger.ItemID(chi.URLParam(r, "id"))

	item, err := h.Store.FindItemByID(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	if item == nil {
		h.writeLedgerError(w, r, &ledger.NotFoundError{Resource: "item", ID: string(id)})
		return
	}

	writeJSON(w, http.StatusOK, toItemDTO(*item))
}

// DeleteItem removes an item no line references.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := ledger.ItemID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteItem(r.Context(), id); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": string(id)})
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness and, when the store supports it, reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "storage unreachable", Code: CodeUnavailable})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.setCurrentScenario("")
	h.Log.Warn("database reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func transactionID(w http.ResponseWriter, r *http.Request) (ledger.TransactionID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "transaction id must be a positive integer",
			Code:  CodeInvalidBody,
		})
		return 0, false
	}
	return ledger.TransactionID(id), true
}

func parseFilter(r *http.Request) (ledger.Filter, error) {
	q := r.URL.Query()
	f := ledger.Filter{
		Party:       q.Get("party"),
		Item:        q.Get("item"),
		ReferenceNo: q.Get("reference"),
	}
	if s := q.Get("type"); s != "" {
		kind, ok := ledger.ParseKind(s)
		if !ok {
			return f, queryError(ledger.CodeInvalidKind, "type", "unknown transaction type "+strconv.Quote(s))
		}
		f.Kind = kind
	}
	for _, bound := range []struct {
		name string
		dst  **ledger.Date
	}{{"from", &f.From}, {"to", &f.To}} {
		s := q.Get(bound.name)
		if s == "" {
			continue
		}
		d, err := ledger.ParseDate(s)
		if err != nil {
			return f, queryError(ledger.CodeInvalidDate, bound.name, err.Error())
		}
		*bound.dst = &d
	}
	return f, nil
}

func queryError(code, field, message string) *ledger.ValidationError {
	return &ledger.ValidationError{Code: code, Field: field, Line: -1, Message: message}
}
