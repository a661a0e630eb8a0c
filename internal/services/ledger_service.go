package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"splitledger/internal/amqp"
	"splitledger/internal/core"
	"splitledger/internal/export"
	"splitledger/internal/ledger"
	applog "splitledger/internal/log"
)

// ExportPublisher hands expense changes to the export worker. The AMQP
// client satisfies this; a nil publisher disables the export path.
type ExportPublisher interface {
	PublishExport(ctx context.Context, id, action string) error
}

// LedgerService orchestrates ledger mutations and the derived views.
// Writes go to the store first; export messages are best-effort and
// never fail the request.
type LedgerService struct {
	store     ledger.Store
	publisher ExportPublisher
	eps       float64
	logger    *applog.Logger
}

func NewLedgerService(store ledger.Store, publisher ExportPublisher, eps float64) *LedgerService {
	if eps <= 0 {
		eps = core.DefaultEps
	}
	return &LedgerService{
		store:     store,
		publisher: publisher,
		eps:       eps,
		logger: applog.New(applog.Config{
			Component: applog.ComponentLedger,
			Handler:   slog.Default().Handler(),
		}),
	}
}

// Snapshot returns the current ledger state.
func (s *LedgerService) Snapshot(ctx context.Context) (core.Ledger, error) {
	return s.store.Load(ctx)
}

// CreateExpense validates and saves a new expense. A missing ID gets a
// generated one; the assigned ID is returned.
func (s *LedgerService) CreateExpense(ctx context.Context, e core.Expense) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := e.Validate(); err != nil {
		return "", err
	}

	if err := s.store.AddExpense(ctx, e); err != nil {
		return "", fmt.Errorf("save expense: %w", err)
	}

	s.publish(ctx, e.ID, amqp.ActionUpsert)

	fields := applog.NewFields().
		WithExpense(e.ID, e.Payer, e.Card, e.Amount).
		WithOperation(applog.OpCreate)
	s.logger.InfoContext(ctx, "Expense created", fields.ToSlice()...)
	return e.ID, nil
}

// UpdateExpense validates and replaces an existing expense.
func (s *LedgerService) UpdateExpense(ctx context.Context, e core.Expense) error {
	if e.ID == "" {
		return core.ErrUnknownExpense
	}
	if err := e.Validate(); err != nil {
		return err
	}

	if err := s.store.UpdateExpense(ctx, e); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}

	s.publish(ctx, e.ID, amqp.ActionUpsert)
	return nil
}

// DeleteExpense removes an expense from the ledger.
func (s *LedgerService) DeleteExpense(ctx context.Context, id string) error {
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	s.publish(ctx, id, amqp.ActionDelete)
	return nil
}

func (s *LedgerService) publish(ctx context.Context, id, action string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExport(ctx, id, action); err != nil {
		// The expense is saved locally; the periodic pending scan in
		// the worker picks it up later.
		fields := applog.NewFields().WithOperation(applog.OpExport).WithError(err)
		fields[applog.FieldExpenseID] = id
		s.logger.ErrorContext(ctx, "Failed to publish export message",
			append(fields.ToSlice(), "action", action)...)
	}
}

// AddPerson adds a participant to the ledger.
func (s *LedgerService) AddPerson(ctx context.Context, name string) error {
	if name == "" {
		return core.ErrEmptyName
	}
	return s.store.AddPerson(ctx, name)
}

// RemovePerson removes a participant and their shares from every expense.
func (s *LedgerService) RemovePerson(ctx context.Context, name string) error {
	if name == "" {
		return core.ErrEmptyName
	}
	return s.store.RemovePerson(ctx, name)
}

// AddCard registers a card with its cashback rate.
func (s *LedgerService) AddCard(ctx context.Context, c core.Card) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return s.store.AddCard(ctx, c)
}

// RemoveCard removes a card. Expenses referencing it fall back to a
// zero cashback rate.
func (s *LedgerService) RemoveCard(ctx context.Context, name string) error {
	if name == "" {
		return core.ErrEmptyName
	}
	return s.store.RemoveCard(ctx, name)
}

// SetApplyCashbackAsDiscount flips the split-base mode.
func (s *LedgerService) SetApplyCashbackAsDiscount(ctx context.Context, enabled bool) error {
	return s.store.SetApplyCashbackAsDiscount(ctx, enabled)
}

// Summary aggregates per-person balances over the optional date window.
func (s *LedgerService) Summary(ctx context.Context, start, end *core.Date) (map[string]core.SummaryEntry, error) {
	l, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return core.Summarize(l, start, end), nil
}

// Transfers computes the settlement plan for the optional date window.
func (s *LedgerService) Transfers(ctx context.Context, start, end *core.Date) ([]core.Transfer, error) {
	l, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	summary := core.Summarize(l, start, end)
	return core.Settle(l.People, core.NetBalances(summary), s.eps), nil
}

// PreviewAllocations normalizes raw shares against the current people
// without persisting anything.
func (s *LedgerService) PreviewAllocations(ctx context.Context, raw map[string]float64) (map[string]float64, error) {
	l, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return core.NormalizeAllocations(raw, l.People), nil
}

// ImportCSV parses expenses from CSV input and saves them all. Rows
// without an ID get one assigned. Returns the number imported.
func (s *LedgerService) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	expenses, err := export.ReadCSV(r)
	if err != nil {
		return 0, fmt.Errorf("parse csv: %w", err)
	}

	imported := 0
	for _, e := range expenses {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if err := s.store.AddExpense(ctx, e); err != nil {
			return imported, fmt.Errorf("import expense %s: %w", e.ID, err)
		}
		s.publish(ctx, e.ID, amqp.ActionUpsert)
		imported++
	}

	s.logger.InfoContext(ctx, "Imported expenses from CSV",
		applog.FieldOperation, applog.OpCreate, "count", imported)
	return imported, nil
}

// ExportCSV writes the expenses in the optional date window as CSV,
// sorted by date then ID for stable output.
func (s *LedgerService) ExportCSV(ctx context.Context, w io.Writer, start, end *core.Date) error {
	l, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	expenses := core.FilterByDate(l.Expenses, start, end)
	sort.SliceStable(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date.Time) {
			return expenses[i].Date.Before(expenses[j].Date.Time)
		}
		return expenses[i].ID < expenses[j].ID
	})

	return export.WriteCSV(w, expenses)
}
