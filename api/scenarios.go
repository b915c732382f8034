/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	trading data for demos. Each scenario creates catalog items and a short
	history of inward and outward transactions that shows one behaviour of
	the stock engine.

AVAILABLE SCENARIOS:

	basic-trading:  One purchase, one sale. Stock 70 @ 5 = 350, in stock
	shortage:       Sale larger than stock. Clamped to zero, out of stock
	mixed-ledger:   Several items, changing rates, low stock, zero-rate receipt

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create catalog items
 3. Post transactions through the ledger writer, so every scenario goes
    through the same validation and unit of work as the API

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "basic-trading"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to loadScenario

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase handler
  - ledger/writer.go: Create used by every loader
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "basic-trading",
		Name:        "Basic Trading",
		Description: "Buy 100 bolts at 5, sell 30 at 8. 70 left, valued at 350",
	},
	{
		ID:          "shortage",
		Name:        "Shortage",
		Description: "Sell more than was received. Stock clamps to zero and shows out of stock",
	},
	{
		ID:          "mixed-ledger",
		Name:        "Mixed Ledger",
		Description: "Several items over a month: rate changes, low stock, a zero-rate receipt",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.getCurrentScenario()
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.bind(r, &req); err != nil {
		writeBindError(w, err)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.Log.WithField("scenario", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"scenario": req.ScenarioID,
	})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "basic-trading":
		load = h.loadBasicTradingScenario
	case "shortage":
		load = h.loadShortageScenario
	case "mixed-ledger":
		load = h.loadMixedLedgerScenario
	default:
		return &ledger.NotFoundError{Resource: "scenario", ID: id}
	}

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset: %w", err)
	}
	h.setCurrentScenario("")
	if err := load(ctx); err != nil {
		return fmt.Errorf("failed to load scenario %s: %w", id, err)
	}
	h.setCurrentScenario(id)
	return nil
}

func (h *Handler) setCurrentScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

func (h *Handler) getCurrentScenario() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentScenario
}

// =============================================================================
// SCENARIO BUILDERS
// =============================================================================

// seedItem is a catalog entry keyed by code so loaders never see UUIDs.
type seedItem struct {
	code, name     string
	purchase, sell string
}

// seedLine refers to its item by code.
type seedLine struct {
	code, qty, rate string
}

type seedTx struct {
	kind     ledger.Kind
	customID string
	date     ledger.Date
	party    string
	ref      string
	lines    []seedLine
}

// seed creates the items, then posts every transaction through the writer.
func (h *Handler) seed(ctx context.Context, items []seedItem, txs []seedTx) error {
	ids := make(map[string]ledger.ItemID, len(items))
	now := time.Now().UTC()
	for _, it := range items {
		item := ledger.Item{
			ID:            ledger.ItemID(uuid.NewString()),
			Code:          it.code,
			Name:          it.name,
			PurchasePrice: decimal.RequireFromString(it.purchase),
			SellingPrice:  decimal.RequireFromString(it.sell),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := h.Store.SaveItem(ctx, item); err != nil {
			return err
		}
		ids[it.code] = item.ID
	}

	for _, tx := range txs {
		header := ledger.Header{
			Kind:        tx.kind,
			CustomID:    tx.customID,
			Date:        tx.date,
			Party:       tx.party,
			ReferenceNo: tx.ref,
		}
		switch tx.kind {
		case ledger.KindInward:
			header.ReceivedBy = "Stores"
			header.WarehouseLocation = "Main"
		case ledger.KindOutward:
			header.IssuedBy = "Counter"
		}

		lines := make([]ledger.Line, 0, len(tx.lines))
		for _, l := range tx.lines {
			lines = append(lines, ledger.Line{
				ItemID:   ids[l.code],
				Quantity: decimal.RequireFromString(l.qty),
				Rate:     decimal.RequireFromString(l.rate),
			})
		}
		if _, err := h.Writer.Create(ctx, header, lines); err != nil {
			return err
		}
	}

	h.Log.WithFields(logrus.Fields{"items": len(items), "transactions": len(txs)}).Debug("scenario seeded")
	return nil
}

func day(month time.Month, d int) ledger.Date {
	return ledger.NewDate(2024, month, d)
}

// =============================================================================
// SCENARIO: Basic Trading
// =============================================================================

func (h *Handler) loadBasicTradingScenario(ctx context.Context) error {
	return h.seed(ctx,
		[]seedItem{{"A-100", "Steel Bolt M8", "5", "8"}},
		[]seedTx{
			{ledger.KindInward, "INV-1", day(time.January, 1), "Acme Supplies", "PO-1001",
				[]seedLine{{"A-100", "100", "5"}}},
			{ledger.KindOutward, "OUT-1", day(time.January, 5), "Corner Shop", "SO-2001",
				[]seedLine{{"A-100", "30", "8"}}},
		},
	)
}

// =============================================================================
// SCENARIO: Shortage
// =============================================================================

func (h *Handler) loadShortageScenario(ctx context.Context) error {
	return h.seed(ctx,
		[]seedItem{
			{"A-100", "Steel Bolt M8", "5", "8"},
			{"B-200", "Hex Nut M8", "0.5", "0.9"},
		},
		[]seedTx{
			{ledger.KindInward, "INV-1", day(time.January, 1), "Acme Supplies", "PO-1001",
				[]seedLine{{"A-100", "100", "5"}, {"B-200", "12", "0.5"}}},
			{ledger.KindOutward, "OUT-1", day(time.January, 3), "Builder Co", "SO-2001",
				[]seedLine{{"A-100", "150", "8"}, {"B-200", "4", "0.9"}}},
		},
	)
}

// =============================================================================
// SCENARIO: Mixed Ledger
// =============================================================================

func (h *Handler) loadMixedLedgerScenario(ctx context.Context) error {
	return h.seed(ctx,
		[]seedItem{
			{"A-100", "Steel Bolt M8", "5", "8"},
			{"B-200", "Hex Nut M8", "0.5", "0.9"},
			{"C-300", "Flat Washer M8", "0.2", "0.35"},
			{"D-400", "Wood Screw 40mm", "0.15", "0.3"},
		},
		[]seedTx{
			{ledger.KindInward, "INV-1", day(time.February, 1), "Acme Supplies", "PO-1101",
				[]seedLine{{"A-100", "50", "5"}, {"B-200", "200", "0.5"}, {"C-300", "300", "0.2"}}},
			{ledger.KindOutward, "OUT-1", day(time.February, 4), "Corner Shop", "SO-2101",
				[]seedLine{{"A-100", "20", "8"}, {"B-200", "120", "0.9"}}},
			{ledger.KindInward, "INV-2", day(time.February, 10), "Fastener World", "PO-1102",
				[]seedLine{{"A-100", "40", "5.5"}}},
			{ledger.KindInward, "INV-3", day(time.February, 12), "Fastener World", "SAMPLE",
				[]seedLine{{"D-400", "25", "0"}}},
			{ledger.KindOutward, "OUT-2", day(time.February, 15), "Builder Co", "SO-2102",
				[]seedLine{{"A-100", "65", "8.5"}, {"C-300", "295", "0.35"}}},
			{ledger.KindOutward, "OUT-3", day(time.February, 20), "Corner Shop", "SO-2103",
				[]seedLine{{"B-200", "75", "0.9"}, {"D-400", "20", "0.3"}}},
		},
	)
}
