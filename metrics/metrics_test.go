package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/ledger"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestOutcome(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{&ledger.ValidationError{Code: ledger.CodeInvalidQuantity}, OutcomeValidation},
		{&ledger.NotFoundError{Resource: "transaction", ID: "1"}, OutcomeNotFound},
		{&ledger.ConflictError{Field: "transaction_id", Value: "INV-1"}, OutcomeConflict},
		{&ledger.IntegrityError{Reason: "gone", Err: &ledger.NotFoundError{Resource: "item", ID: "x"}}, OutcomeIntegrity},
		{&ledger.TransientStorageError{Op: "commit", Err: errors.New("busy")}, OutcomeTransient},
		{errors.New("disk on fire"), OutcomeError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Outcome(tc.err), "%v", tc.err)
	}
}

func TestMetrics_ExposesWritesAndAggregation(t *testing.T) {
	m := New()

	m.ObserveWrite("create", ledger.KindInward, nil, 3*time.Millisecond)
	m.ObserveWrite("create", ledger.KindInward, nil, 2*time.Millisecond)
	m.ObserveWrite("delete", "", &ledger.NotFoundError{Resource: "transaction", ID: "9"}, time.Millisecond)
	m.ObserveAggregation(time.Millisecond, 2)
	m.ObserveAggregation(time.Millisecond, 0)

	body := scrape(t, m)

	assert.Contains(t, body, `ledger_writes_total{kind="inward",op="create",outcome="ok"} 2`)
	assert.Contains(t, body, `ledger_writes_total{kind="unknown",op="delete",outcome="not_found"} 1`)
	assert.Contains(t, body, `ledger_unit_duration_seconds_count{op="create"} 2`)
	assert.Contains(t, body, `stock_aggregation_duration_seconds_count 2`)
	assert.Contains(t, body, `stock_skipped_lines_total 2`)
}

func TestMetrics_InstancesAreIndependent(t *testing.T) {
	a, b := New(), New()

	a.ObserveAggregation(time.Millisecond, 5)

	assert.Contains(t, scrape(t, a), "stock_skipped_lines_total 5")
	assert.Contains(t, scrape(t, b), "stock_skipped_lines_total 0")
}
