package sheets

import (
	"context"

	"splitledger/internal/core"
)

// SummaryRow is one participant's line in the exported report.
type SummaryRow struct {
	Person           string
	Paid             float64
	Consumed         float64
	Cashback         float64
	Net              float64
	NetAfterCashback float64
}

// Ports for outbound adapters.
type (
	// ExpenseUpserter writes a single expense row, replacing any existing
	// row with the same ID.
	ExpenseUpserter interface {
		UpsertExpense(ctx context.Context, e core.Expense) (rowRef string, err error)
	}

	// ExpenseRemover removes the row for an expense ID, if present.
	ExpenseRemover interface {
		RemoveExpense(ctx context.Context, id string) error
	}

	// ReportWriter replaces the summary and transfers tabs with the
	// current state of the ledger.
	ReportWriter interface {
		WriteReport(ctx context.Context, summary []SummaryRow, transfers []core.Transfer) error
	}
)
