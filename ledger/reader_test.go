package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/ledger"
)

func TestReader_List_OrdersByDateThenIdentityDescending(t *testing.T) {
	writer, reader, _ := newTestLedger(t)
	ctx := context.Background()

	// GIVEN: two transactions on the same day and one earlier
	early, err := writer.Create(ctx, inward("INV-1", jan1), []ledger.Line{line("item-a", "1", "1")})
	require.NoError(t, err)
	sameDayA, err := writer.Create(ctx, inward("INV-2", jan1.AddDays(5)), []ledger.Line{line("item-a", "1", "1")})
	require.NoError(t, err)
	sameDayB, err := writer.Create(ctx, outward("OUT-1", jan1.AddDays(5)), []ledger.Line{line("item-a", "1", "1")})
	require.NoError(t, err)

	// WHEN
	txs, err := reader.List(ctx, ledger.Filter{})
	require.NoError(t, err)

	// THEN
	require.Len(t, txs, 3)
	assert.Equal(t, []ledger.TransactionID{sameDayB.ID, sameDayA.ID, early.ID},
		[]ledger.TransactionID{txs[0].ID, txs[1].ID, txs[2].ID})
}

func TestReader_LinesKeepInsertionOrder(t *testing.T) {
	writer, reader, _ := newTestLedger(t)
	ctx := context.Background()

	tx, err := writer.Create(ctx, inward("INV-1", jan1), []ledger.Line{
		line("item-c", "1", "1"), line("item-a", "1", "1"), line("item-b", "1", "1"),
	})
	require.NoError(t, err)

	got, err := reader.Get(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 3)
	assert.Equal(t, ledger.ItemID("item-c"), got.Lines[0].ItemID)
	assert.Equal(t, ledger.ItemID("item-a"), got.Lines[1].ItemID)
	assert.Equal(t, ledger.ItemID("item-b"), got.Lines[2].ItemID)
}

func TestReader_DeletedCatalogItemDegradesToPlaceholder(t *testing.T) {
	writer, reader, mem := newTestLedger(t)
	ctx := context.Background()

	tx, err := writer.Create(ctx, inward("INV-1", jan1), []ledger.Line{line("item-a", "1", "1"), line("item-b", "1", "1")})
	require.NoError(t, err)

	// GIVEN: the catalog lost item-b after the transaction was written
	mem.ForceDeleteItem("item-b")

	// THEN: historical transaction is still readable
	got, err := reader.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "A-100", got.Lines[0].ItemCode)
	assert.Equal(t, ledger.PlaceholderItemCode, got.Lines[1].ItemCode)
	assert.Equal(t, ledger.PlaceholderItemName, got.Lines[1].ItemName)

	txs, err := reader.List(ctx, ledger.Filter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.PlaceholderItemName, txs[0].Lines[1].ItemName)
}

func TestReader_List_Filter(t *testing.T) {
	writer, reader, _ := newTestLedger(t)
	ctx := context.Background()

	h1 := inward("INV-1", jan1)
	h1.ReferenceNo = "PO-100"
	_, err := writer.Create(ctx, h1, []ledger.Line{line("item-a", "1", "1")})
	require.NoError(t, err)
	_, err = writer.Create(ctx, outward("OUT-1", jan1.AddDays(10)), []ledger.Line{line("item-b", "1", "1")})
	require.NoError(t, err)
	_, err = writer.Create(ctx, inward("INV-2", jan1.AddDays(20)), []ledger.Line{line("item-c", "1", "1")})
	require.NoError(t, err)

	from, to := jan1.AddDays(1), jan1.AddDays(15)
	cases := []struct {
		name   string
		filter ledger.Filter
		want   []string
	}{
		{"all", ledger.Filter{}, []string{"INV-2", "OUT-1", "INV-1"}},
		{"kind", ledger.Filter{Kind: ledger.KindInward}, []string{"INV-2", "INV-1"}},
		{"date range inclusive", ledger.Filter{From: &from, To: &to}, []string{"OUT-1"}},
		{"party substring", ledger.Filter{Party: "corner"}, []string{"OUT-1"}},
		{"item by name", ledger.Filter{Item: "wash"}, []string{"INV-2"}},
		{"item by code", ledger.Filter{Item: "a-1"}, []string{"INV-1"}},
		{"reference", ledger.Filter{ReferenceNo: "po-1"}, []string{"INV-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			txs, err := reader.List(ctx, tc.filter)
			require.NoError(t, err)
			got := make([]string, len(txs))
			for i, tx := range txs {
				got[i] = tx.CustomID
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReader_Get_NotFound(t *testing.T) {
	_, reader, _ := newTestLedger(t)

	_, err := reader.Get(context.Background(), 99)

	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]ledger.Kind{
		"inward": ledger.KindInward, "Invert": ledger.KindInward,
		"OUTWARD": ledger.KindOutward, "outvert": ledger.KindOutward,
	} {
		got, ok := ledger.ParseKind(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ledger.ParseKind("sideways")
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	got, err := ledger.ParseDate("2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-05", got.String())

	got, err = ledger.ParseDate("2024-01-05T23:10:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(jan1.AddDays(4)))

	_, err = ledger.ParseDate("05/01/2024")
	assert.Error(t, err)
}

func TestPeriod_ContainsIsInclusiveAndOpenEnded(t *testing.T) {
	start, end := jan1, jan1.AddDays(9)

	tests := []struct {
		name   string
		period ledger.Period
		date   ledger.Date
		want   bool
	}{
		{"on start", ledger.Period{Start: &start, End: &end}, start, true},
		{"on end", ledger.Period{Start: &start, End: &end}, end, true},
		{"before start", ledger.Period{Start: &start, End: &end}, start.AddDays(-1), false},
		{"after end", ledger.Period{Start: &start, End: &end}, end.AddDays(1), false},
		{"open start", ledger.Period{End: &end}, start.AddDays(-400), true},
		{"open end", ledger.Period{Start: &start}, end.AddDays(400), true},
		{"unbounded", ledger.Period{}, start, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.period.Contains(tt.date))
		})
	}
}
