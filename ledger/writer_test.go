package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*ledger.Writer, *ledger.Reader, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	log, _ := test.NewNullLogger()
	reader := ledger.NewReader(mem, log)
	writer := ledger.NewWriter(mem, reader, log)

	ctx := context.Background()
	for _, item := range []ledger.Item{
		{ID: "item-a", Code: "A-100", Name: "Bolt"},
		{ID: "item-b", Code: "B-200", Name: "Nut"},
		{ID: "item-c", Code: "C-300", Name: "Washer"},
	} {
		require.NoError(t, mem.SaveItem(ctx, item))
	}
	return writer, reader, mem
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func line(item string, qty, rate string) ledger.Line {
	return ledger.Line{ItemID: ledger.ItemID(item), Quantity: d(qty), Rate: d(rate)}
}

func inward(customID string, date ledger.Date) ledger.Header {
	return ledger.Header{Kind: ledger.KindInward, CustomID: customID, Date: date, Party: "Acme Supplies"}
}

func outward(customID string, date ledger.Date) ledger.Header {
	return ledger.Header{Kind: ledger.KindOutward, CustomID: customID, Date: date, Party: "Corner Shop"}
}

var jan1 = ledger.NewDate(2024, time.January, 1)

// =============================================================================
// CREATE
// =============================================================================

func TestWriter_Create_ComputesAmountsAndTotal(t *testing.T) {
	writer, _, _ := newTestLedger(t)
	ctx := context.Background()

	// GIVEN: a caller-supplied amount that disagrees with qty × rate
	bad := line("item-a", "2.5", "4.10")
	bad.Amount = d("999")

	// WHEN
	tx, err := writer.Create(ctx, inward("INV-1", jan1), []ledger.Line{bad, line("item-b", "3", "0.333")})
	require.NoError(t, err)

	// THEN: amounts are recomputed exactly and the total is their sum
	require.Len(t, tx.Lines, 2)
	assert.True(t, tx.Lines[0].Amount.Equal(d("10.25")), "got %s", tx.Lines[0].Amount)
	assert.True(t, tx.Lines[1].Amount.Equal(d("0.999")), "got %s", tx.Lines[1].Amount)
	assert.True(t, tx.TotalAmount.Equal(d("11.249")), "got %s", tx.TotalAmount)
	for _, l := range tx.Lines {
		assert.True(t, l.Amount.Equal(l.Quantity.Mul(l.Rate)))
	}
	assert.True(t, tx.TotalAmount.Equal(ledger.SumLines(tx.Lines)))

	assert.Equal(t, "A-100", tx.Lines[0].ItemCode)
	assert.Equal(t, "Nut", tx.Lines[1].ItemName)
	assert.False(t, tx.CreatedAt.IsZero())
}

func TestWriter_Create_ValidationFailuresLeaveNothing(t *testing.T) {
	cases := []struct {
		name  string
		h     ledger.Header
		lines []ledger.Line
		code  string
	}{
		{"unknown item", inward("INV-1", jan1), []ledger.Line{line("item-a", "1", "1"), line("nope", "1", "1")}, ledger.CodeItemNotFound},
		{"zero quantity", inward("INV-1", jan1), []ledger.Line{line("item-a", "0", "1")}, ledger.CodeInvalidQuantity},
		{"negative quantity", inward("INV-1", jan1), []ledger.Line{line("item-a", "-3", "1")}, ledger.CodeInvalidQuantity},
		{"negative rate", inward("INV-1", jan1), []ledger.Line{line("item-a", "1", "-0.01")}, ledger.CodeInvalidRate},
		{"no lines", inward("INV-1", jan1), nil, ledger.CodeNoLines},
		{"missing party", ledger.Header{Kind: ledger.KindInward, CustomID: "INV-1", Date: jan1}, []ledger.Line{line("item-a", "1", "1")}, ledger.CodeMissingField},
		{"missing custom id", ledger.Header{Kind: ledger.KindInward, CustomID: "  ", Date: jan1, Party: "x"}, []ledger.Line{line("item-a", "1", "1")}, ledger.CodeMissingField},
		{"missing date", ledger.Header{Kind: ledger.KindInward, CustomID: "INV-1", Party: "x"}, []ledger.Line{line("item-a", "1", "1")}, ledger.CodeMissingField},
		{"bad kind", ledger.Header{Kind: "sideways", CustomID: "INV-1", Date: jan1, Party: "x"}, []ledger.Line{line("item-a", "1", "1")}, ledger.CodeInvalidKind},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			writer, _, mem := newTestLedger(t)

			_, err := writer.Create(context.Background(), tc.h, tc.lines)

			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.code, verr.Code)
			assert.True(t, ledger.IsClientError(err))
			assert.Equal(t, 0, mem.HeaderCount(), "no header may survive a failed create")
		})
	}
}

func TestWriter_Create_ZeroRateAllowed(t *testing.T) {
	writer, _, _ := newTestLedger(t)

	tx, err := writer.Create(context.Background(), inward("INV-FREE", jan1), []ledger.Line{line("item-a", "5", "0")})
	require.NoError(t, err)
	assert.True(t, tx.TotalAmount.IsZero())
}

// failingStore fails the Nth InsertLine inside a unit of work.
type failingStore struct {
	*store.Memory
	failAt int
}

func (f *failingStore) WithUnit(ctx context.Context, fn func(u ledger.Unit) error) error {
	return f.Memory.WithUnit(ctx, func(u ledger.Unit) error {
		return fn(&failingUnit{Unit: u, failAt: f.failAt})
	})
}

type failingUnit struct {
	ledger.Unit
	failAt int
	calls  int
}

var errDiskFull = errors.New("disk full")

func (u *failingUnit) InsertLine(ctx context.Context, id ledger.TransactionID, l ledger.Line) error {
	u.calls++
	if u.calls == u.failAt {
		return errDiskFull
	}
	return u.Unit.InsertLine(ctx, id, l)
}

func TestWriter_Create_FailureMidUnitRollsBackHeaderAndLines(t *testing.T) {
	// GIVEN: storage that fails on the second line insert
	_, _, mem := newTestLedger(t)
	fs := &failingStore{Memory: mem, failAt: 2}
	log, _ := test.NewNullLogger()
	writer := ledger.NewWriter(fs, ledger.NewReader(fs, log), log)

	// WHEN
	_, err := writer.Create(context.Background(), inward("INV-1", jan1), []ledger.Line{
		line("item-a", "1", "1"), line("item-b", "1", "1"), line("item-c", "1", "1"),
	})

	// THEN: neither header nor any line survives
	require.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 0, mem.HeaderCount())
	assert.Equal(t, 0, mem.LineCount(1))
}

// racingStore deletes an item after validation but before the unit opens.
type racingStore struct {
	*store.Memory
	victim ledger.ItemID
}

func (r *racingStore) WithUnit(ctx context.Context, fn func(u ledger.Unit) error) error {
	r.Memory.ForceDeleteItem(r.victim)
	return r.Memory.WithUnit(ctx, fn)
}

func TestWriter_Create_ItemDeletedDuringWriteIsIntegrityError(t *testing.T) {
	_, _, mem := newTestLedger(t)
	rs := &racingStore{Memory: mem, victim: "item-b"}
	log, _ := test.NewNullLogger()
	writer := ledger.NewWriter(rs, ledger.NewReader(rs, log), log)

	_, err := writer.Create(context.Background(), inward("INV-1", jan1), []ledger.Line{
		line("item-a", "1", "1"), line("item-b", "1", "1"),
	})

	require.ErrorIs(t, err, ledger.ErrIntegrity)
	assert.True(t, ledger.IsConflict(err))
	assert.False(t, ledger.IsNotFound(err))
	assert.Equal(t, 0, mem.HeaderCount())
}

// slowStore makes every header insert outlast the unit timeout.
type slowStore struct {
	*store.Memory
}

func (s *slowStore) WithUnit(ctx context.Context, fn func(u ledger.Unit) error) error {
	return s.Memory.WithUnit(ctx, func(u ledger.Unit) error {
		<-ctx.Done()
		return fn(u)
	})
}

func TestWriter_Create_TimeoutIsTransientAndRolledBack(t *testing.T) {
	_, _, mem := newTestLedger(t)
	ss := &slowStore{Memory: mem}
	log, _ := test.NewNullLogger()
	writer := ledger.NewWriter(ss, ledger.NewReader(ss, log), log)
	writer.UnitTimeout = 10 * time.Millisecond

	_, err := writer.Create(context.Background(), inward("INV-1", jan1), []ledger.Line{line("item-a", "1", "1")})

	require.ErrorIs(t, err, ledger.ErrTransientStorage)
	assert.True(t, ledger.IsRetryable(err))
	assert.Equal(t, 0, mem.HeaderCount())
}

// =============================================================================
// UNIQUENESS
// =============================================================================

func TestWriter_Create_DuplicateCustomIDIsConflict(t *testing.T) {
	writer, reader, mem := newTestLedger(t)
	ctx := context.Background()

	first, err := writer.Create(ctx, inward("INV-1", jan1), []ledger.Line{line("item-a", "10", "2")})
	require.NoError(t, err)

	_, err = writer.Create(ctx, inward("INV-1", jan1.AddDays(1)), []ledger.Line{line("item-b", "1", "1")})

	var conflict *ledger.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "INV-1", conflict.Value)
	assert.Equal(t, 1, mem.HeaderCount())

	// First transaction is intact
	got, err := reader.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, ledger.ItemID("item-a"), got.Lines[0].ItemID)
	assert.True(t, got.TotalAmount.Equal(d("20")))
}

func TestWriter_Create_SameCustomIDAcrossKindsAllowed(t *testing.T) {
	writer, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := writer.Create(ctx, inward("T-1", jan1), []ledger.Line{line("item-a", "10", "2")})
	require.NoError(t, err)
	_, err = writer.Create(ctx, outward("T-1", jan1), []ledger.Line{line("item-a", "1", "2")})
	assert.NoError(t, err)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestWriter_Update_ReplacesAllLines(t *testing.T) {
	writer, reader, mem := newTestLedger(t)
	ctx := context.Background()

	// GIVEN: a transaction with lines [A, B]
	tx, err := writer.Create(ctx, inward("INV-1", jan1), []ledger.Line{
		line("item-a", "1", "10"), line("item-b", "2", "10"),
	})
	require.NoError(t, err)
	require.Equal(t, 2, mem.LineCount(tx.ID))

	// WHEN: updated to [C]
	h := inward("INV-1", jan1)
	h.ReferenceNo = "PO-77"
	updated, err := writer.Update(ctx, tx.ID, h, []ledger.Line{line("item-c", "4", "2.5")})
	require.NoError(t, err)

	// THEN: exactly one line, C, is persisted
	assert.Equal(t, 1, mem.LineCount(tx.ID))
	require.Len(t, updated.Lines, 1)
	assert.Equal(t, ledger.ItemID("item-c"), updated.Lines[0].ItemID)
	assert.True(t, updated.TotalAmount.Equal(d("10")))
	assert.Equal(t, "PO-77", updated.ReferenceNo)
	assert.Equal(t, tx.CreatedAt, updated.CreatedAt)

	got, err := reader.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 1)
}

func TestWriter_Update_NotFound(t *testing.T) {
	writer, _, mem := newTestLedger(t)

	_, err := writer.Update(context.Background(), 42, inward("INV-1", jan1), []ledger.Line{line("item-a", "1", "1")})

	assert.True(t, ledger.IsNotFound(err))
	assert.Equal(t, 0, mem.HeaderCount())
	assert.Equal(t, 0, mem.LineCount(42))
}

func TestWriter_Update_CustomIDCollisionLeavesTargetUnchanged(t *testing.T) {
	writer, reader, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := writer.Create(ctx, inward("INV-1", jan1), []ledger.Line{line("item-a", "1", "1")})
	require.NoError(t, err)
	second, err := writer.Create(ctx, inward("INV-2", jan1), []ledger.Line{line("item-b", "2", "2")})
	require.NoError(t, err)

	_, err = writer.Update(ctx, second.ID, inward("INV-1", jan1), []ledger.Line{line("item-c", "9", "9")})
	require.ErrorIs(t, err, ledger.ErrConflict)

	got, err := reader.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-2", got.CustomID)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, ledger.ItemID("item-b"), got.Lines[0].ItemID)
}

func TestWriter_Update_KeepingOwnCustomIDIsNotConflict(t *testing.T) {
	writer, _, _ := newTestLedger(t)
	ctx := context.Background()

	tx, err := writer.Create(ctx, inward("INV-1", jan1), []ledger.Line{line("item-a", "1", "1")})
	require.NoError(t, err)

	_, err = writer.Update(ctx, tx.ID, inward("INV-1", jan1.AddDays(3)), []ledger.Line{line("item-a", "2", "1")})
	assert.NoError(t, err)
}

// =============================================================================
// DELETE
// =============================================================================

func TestWriter_Delete_CascadesLines(t *testing.T) {
	writer, reader, mem := newTestLedger(t)
	ctx := context.Background()

	tx, err := writer.Create(ctx, inward("INV-1", jan1), []ledger.Line{line("item-a", "1", "1"), line("item-b", "1", "1")})
	require.NoError(t, err)

	require.NoError(t, writer.Delete(ctx, tx.ID))

	assert.Equal(t, 0, mem.LineCount(tx.ID))
	_, err = reader.Get(ctx, tx.ID)
	assert.True(t, ledger.IsNotFound(err))

	// Custom id is free again
	_, err = writer.Create(ctx, inward("INV-1", jan1), []ledger.Line{line("item-a", "1", "1")})
	assert.NoError(t, err)
}

func TestWriter_Delete_NotFound(t *testing.T) {
	writer, _, _ := newTestLedger(t)

	err := writer.Delete(context.Background(), 7)

	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "7", nf.ID)
}

func TestItemStore_DeleteReferencedItemIsRestricted(t *testing.T) {
	writer, _, mem := newTestLedger(t)
	ctx := context.Background()

	_, err := writer.Create(ctx, inward("INV-1", jan1), []ledger.Line{line("item-a", "1", "1")})
	require.NoError(t, err)

	err = mem.DeleteItem(ctx, "item-a")
	assert.ErrorIs(t, err, ledger.ErrIntegrity)

	assert.NoError(t, mem.DeleteItem(ctx, "item-c"))
	assert.True(t, ledger.IsNotFound(mem.DeleteItem(ctx, "item-c")))
}

// =============================================================================
// OBSERVER
// =============================================================================

type recordingObserver struct {
	ops []string
	err []error
}

func (r *recordingObserver) ObserveWrite(op string, _ ledger.Kind, err error, _ time.Duration) {
	r.ops = append(r.ops, op)
	r.err = append(r.err, err)
}

func TestWriter_ObserverSeesEveryAttempt(t *testing.T) {
	writer, _, _ := newTestLedger(t)
	obs := &recordingObserver{}
	writer.Observer = obs
	ctx := context.Background()

	tx, err := writer.Create(ctx, inward("INV-1", jan1), []ledger.Line{line("item-a", "1", "1")})
	require.NoError(t, err)
	_, _ = writer.Create(ctx, inward("INV-1", jan1), []ledger.Line{line("item-a", "1", "1")})
	require.NoError(t, writer.Delete(ctx, tx.ID))

	assert.Equal(t, []string{"create", "create", "delete"}, obs.ops)
	assert.NoError(t, obs.err[0])
	assert.ErrorIs(t, obs.err[1], ledger.ErrConflict)
}

func TestWithinPrecision(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"100", true},
		{"0.5", true},
		{"1e28", true},
		{"1e29", false},
		{"0.0000000000000000000000000001", true},
		{"0.00000000000000000000000000001", false},
		{"1e2000000000", false},
		{"-1e-2000000000", false},
		{"1234567890123456789012345678901234567890", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ledger.WithinPrecision(d(tt.in)))
		})
	}
}

func TestWriter_Create_OutOfRangeQuantityIsRejectedBeforeArithmetic(t *testing.T) {
	writer, _, mem := newTestLedger(t)

	_, err := writer.Create(context.Background(), inward("INV-1", jan1),
		[]ledger.Line{line("item-a", "1e2000000000", "1e2000000000")})

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ledger.CodeInvalidQuantity, verr.Code)
	assert.Equal(t, 0, mem.HeaderCount())
}
