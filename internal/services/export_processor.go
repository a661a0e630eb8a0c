package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"splitledger/internal/amqp"
	"splitledger/internal/core"
	applog "splitledger/internal/log"
	"splitledger/internal/sheets"
	"splitledger/internal/storage"
)

// ExportProcessor applies expense export work against the spreadsheet.
// It always re-reads the expense from storage, so a stale message after
// an edit still exports the latest state.
type ExportProcessor struct {
	storage  *storage.SQLiteRepository
	upserter sheets.ExpenseUpserter
	remover  sheets.ExpenseRemover
	report   sheets.ReportWriter
	eps      float64
	logger   *applog.Logger
}

func NewExportProcessor(
	repo *storage.SQLiteRepository,
	upserter sheets.ExpenseUpserter,
	remover sheets.ExpenseRemover,
	report sheets.ReportWriter,
	eps float64,
) *ExportProcessor {
	if eps <= 0 {
		eps = core.DefaultEps
	}
	return &ExportProcessor{
		storage:  repo,
		upserter: upserter,
		remover:  remover,
		report:   report,
		eps:      eps,
		logger: applog.New(applog.Config{
			Component: applog.ComponentExport,
			Handler:   slog.Default().Handler(),
		}),
	}
}

// HandleMessage processes one export message from the queue.
func (p *ExportProcessor) HandleMessage(ctx context.Context, msg *amqp.ExportMessage) error {
	switch msg.Action {
	case amqp.ActionUpsert:
		return p.exportExpense(ctx, msg.ID)
	case amqp.ActionDelete:
		return p.removeExpense(ctx, msg.ID)
	default:
		// Unknown actions are dropped, not requeued.
		p.logger.WarnContext(ctx, "Ignoring unknown export action",
			applog.FieldExpenseID, msg.ID, "action", msg.Action)
		return nil
	}
}

// exportExpense pushes the current state of an expense to the sheet.
// An expense deleted between publish and processing turns into a remove.
func (p *ExportProcessor) exportExpense(ctx context.Context, id string) error {
	e, err := p.storage.GetExpense(ctx, id)
	if errors.Is(err, core.ErrUnknownExpense) {
		return p.removeExpense(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("get expense %s: %w", id, err)
	}

	ref, err := p.upserter.UpsertExpense(ctx, e)
	if err != nil {
		if markErr := p.storage.MarkExportError(ctx, id); markErr != nil {
			p.logger.ErrorContext(ctx, "Failed to mark export error",
				applog.FieldExpenseID, id, applog.FieldError, markErr)
		}
		return fmt.Errorf("upsert expense %s: %w", id, err)
	}

	if err := p.storage.MarkExported(ctx, id); err != nil {
		// The sheet write succeeded; the pending scan will retry the
		// bookkeeping.
		p.logger.WarnContext(ctx, "Failed to mark expense as exported",
			applog.FieldExpenseID, id, applog.FieldError, err)
	}

	p.logger.InfoContext(ctx, "Exported expense to sheet",
		applog.FieldExpenseID, id, applog.FieldSheetsRef, ref,
		applog.FieldOperation, applog.OpExport)
	return nil
}

func (p *ExportProcessor) removeExpense(ctx context.Context, id string) error {
	if err := p.remover.RemoveExpense(ctx, id); err != nil {
		return fmt.Errorf("remove expense %s: %w", id, err)
	}
	p.logger.InfoContext(ctx, "Removed expense from sheet",
		applog.FieldExpenseID, id, applog.FieldOperation, applog.OpDelete)
	return nil
}

// ProcessPending exports up to batchSize expenses still marked pending.
// This catches rows whose publish failed or whose message was lost.
func (p *ExportProcessor) ProcessPending(ctx context.Context, batchSize int) error {
	pending, err := p.storage.GetPendingExportExpenses(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("get pending expenses: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	p.logger.DebugContext(ctx, "Processing pending exports", "count", len(pending))

	for _, item := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := p.exportExpense(ctx, item.ID); err != nil {
			p.logger.ErrorContext(ctx, "Failed to export pending expense",
				applog.FieldExpenseID, item.ID, applog.FieldError, err)
			// Keep going; the row stays pending or is marked error.
		}
	}
	return nil
}

// RefreshReport recomputes the all-time summary and settlement plan and
// rewrites the report tabs.
func (p *ExportProcessor) RefreshReport(ctx context.Context) error {
	if p.report == nil {
		return nil
	}

	l, err := p.storage.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	summary := core.Summarize(l, nil, nil)
	transfers := core.Settle(l.People, core.NetBalances(summary), p.eps)

	rows := make([]sheets.SummaryRow, 0, len(summary))
	for _, person := range orderedPeople(l.People, summary) {
		s := summary[person]
		rows = append(rows, sheets.SummaryRow{
			Person:           person,
			Paid:             s.Paid,
			Consumed:         s.Consumed,
			Cashback:         s.Cashback,
			Net:              s.Net,
			NetAfterCashback: s.NetAfterCashback,
		})
	}

	if err := p.report.WriteReport(ctx, rows, transfers); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// orderedPeople walks the ledger order first, then any summary-only
// names sorted, so report rows are stable.
func orderedPeople(people []string, summary map[string]core.SummaryEntry) []string {
	out := make([]string, 0, len(summary))
	seen := make(map[string]bool, len(summary))
	for _, p := range people {
		if _, ok := summary[p]; ok && !seen[p] {
			out = append(out, p)
			seen[p] = true
		}
	}
	var extra []string
	for p := range summary {
		if !seen[p] {
			extra = append(extra, p)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
