package stock

import (
	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
)

// Summary totals a ledger report.
type Summary struct {
	InwardCount  int
	InwardTotal  decimal.Decimal
	OutwardCount int
	OutwardTotal decimal.Decimal
	NetValue     decimal.Decimal // InwardTotal - OutwardTotal
}

// Report is a filtered, chronological ledger statement.
type Report struct {
	Rows    []Row
	Summary Summary
}

// LedgerReport filters txs, orders them oldest first and attaches the
// running balance to each row. The balance starts at zero for the filtered
// sequence, so it reflects only what the filter selected.
func LedgerReport(txs []ledger.Transaction, f ledger.Filter) Report {
	selected := make([]ledger.Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.Matches(tx) {
			selected = append(selected, tx)
		}
	}

	rep := Report{
		Rows: RunningBalances(selected),
		Summary: Summary{
			InwardTotal:  decimal.Zero,
			OutwardTotal: decimal.Zero,
		},
	}
	for _, row := range rep.Rows {
		switch row.Transaction.Kind {
		case ledger.KindInward:
			rep.Summary.InwardCount++
			rep.Summary.InwardTotal = rep.Summary.InwardTotal.Add(row.Transaction.TotalAmount)
		case ledger.KindOutward:
			rep.Summary.OutwardCount++
			rep.Summary.OutwardTotal = rep.Summary.OutwardTotal.Add(row.Transaction.TotalAmount)
		}
	}
	rep.Summary.NetValue = rep.Summary.InwardTotal.Sub(rep.Summary.OutwardTotal)
	return rep
}
