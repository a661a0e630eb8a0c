package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"splitledger/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func testExpense(t *testing.T, id, date string) core.Expense {
	t.Helper()
	return core.Expense{
		ID:     id,
		Date:   mustDate(t, date),
		Payer:  "Ana",
		Card:   "Visa",
		Amount: 42.50,
		Allocations: map[string]float64{
			"Ana": 0.5,
			"Bob": 0.5,
		},
	}
}

func TestExpenseCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	e := testExpense(t, "exp-1", "2024-06-01")
	if err := repo.AddExpense(ctx, e); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	got, err := repo.GetExpense(ctx, "exp-1")
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if got.Payer != "Ana" || got.Amount != 42.50 {
		t.Errorf("got %+v", got)
	}
	if got.Allocations["Bob"] != 0.5 {
		t.Errorf("allocations = %v", got.Allocations)
	}

	e.Amount = 50
	e.Payer = "Bob"
	if err := repo.UpdateExpense(ctx, e); err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	got, err = repo.GetExpense(ctx, "exp-1")
	if err != nil {
		t.Fatalf("GetExpense after update: %v", err)
	}
	if got.Payer != "Bob" || got.Amount != 50 {
		t.Errorf("after update got %+v", got)
	}

	missing := testExpense(t, "no-such", "2024-06-01")
	if err := repo.UpdateExpense(ctx, missing); !errors.Is(err, core.ErrUnknownExpense) {
		t.Errorf("update unknown = %v, want ErrUnknownExpense", err)
	}

	if err := repo.DeleteExpense(ctx, "exp-1"); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if _, err := repo.GetExpense(ctx, "exp-1"); !errors.Is(err, core.ErrUnknownExpense) {
		t.Errorf("get deleted = %v, want ErrUnknownExpense", err)
	}
	if err := repo.DeleteExpense(ctx, "exp-1"); !errors.Is(err, core.ErrUnknownExpense) {
		t.Errorf("delete twice = %v, want ErrUnknownExpense", err)
	}
}

func TestExportStateTransitions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.AddExpense(ctx, testExpense(t, "a", "2024-06-01")); err != nil {
		t.Fatalf("AddExpense a: %v", err)
	}
	if err := repo.AddExpense(ctx, testExpense(t, "b", "2024-06-02")); err != nil {
		t.Fatalf("AddExpense b: %v", err)
	}

	pending, err := repo.GetPendingExportExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingExportExpenses: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := repo.MarkExported(ctx, "a"); err != nil {
		t.Fatalf("MarkExported: %v", err)
	}
	if err := repo.MarkExportError(ctx, "b"); err != nil {
		t.Fatalf("MarkExportError: %v", err)
	}

	pending, err = repo.GetPendingExportExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingExportExpenses: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after marks = %d, want 0", len(pending))
	}

	// Editing a synced expense puts it back in the export queue.
	e := testExpense(t, "a", "2024-06-01")
	e.Amount = 99
	if err := repo.UpdateExpense(ctx, e); err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	pending, err = repo.GetPendingExportExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingExportExpenses: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "a" {
		t.Errorf("pending after edit = %+v, want [a]", pending)
	}
}

func TestPeopleOrderAndRemoval(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, name := range []string{"Ana", "Bob", "Cleo"} {
		if err := repo.AddPerson(ctx, name); err != nil {
			t.Fatalf("AddPerson %s: %v", name, err)
		}
	}
	if err := repo.AddPerson(ctx, "Ana"); !errors.Is(err, core.ErrDuplicateName) {
		t.Errorf("duplicate person = %v, want ErrDuplicateName", err)
	}

	if err := repo.AddExpense(ctx, testExpense(t, "e1", "2024-06-01")); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	if err := repo.RemovePerson(ctx, "Bob"); err != nil {
		t.Fatalf("RemovePerson: %v", err)
	}
	if err := repo.RemovePerson(ctx, "Nobody"); !errors.Is(err, core.ErrUnknownPerson) {
		t.Errorf("remove unknown = %v, want ErrUnknownPerson", err)
	}

	l, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(l.People) != 2 || l.People[0] != "Ana" || l.People[1] != "Cleo" {
		t.Errorf("people = %v, want [Ana Cleo]", l.People)
	}
	// Bob's share was rewritten out of the stored allocations.
	if _, ok := l.Expenses[0].Allocations["Bob"]; ok {
		t.Errorf("allocations still mention removed person: %v", l.Expenses[0].Allocations)
	}
}

func TestCardsAndSettings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.AddCard(ctx, core.Card{Name: "Visa", CashbackRate: 0.1}); err != nil {
		t.Fatalf("AddCard: %v", err)
	}
	if err := repo.AddCard(ctx, core.Card{Name: "Amex", CashbackRate: 2}); !errors.Is(err, core.ErrInvalidRate) {
		t.Errorf("invalid rate = %v, want ErrInvalidRate", err)
	}
	if err := repo.AddCard(ctx, core.Card{Name: "Visa", CashbackRate: 0.05}); !errors.Is(err, core.ErrDuplicateName) {
		t.Errorf("duplicate card = %v, want ErrDuplicateName", err)
	}

	l, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(l.Cards) != 1 || l.Cards[0].CashbackRate != 0.1 {
		t.Errorf("cards = %+v", l.Cards)
	}
	if !l.ApplyCashbackAsDiscount {
		t.Error("apply_cashback_as_discount should default to true")
	}

	if err := repo.SetApplyCashbackAsDiscount(ctx, false); err != nil {
		t.Fatalf("SetApplyCashbackAsDiscount: %v", err)
	}
	l, err = repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.ApplyCashbackAsDiscount {
		t.Error("setting not persisted")
	}

	if err := repo.RemoveCard(ctx, "Visa"); err != nil {
		t.Fatalf("RemoveCard: %v", err)
	}
	if err := repo.RemoveCard(ctx, "Visa"); err == nil {
		t.Error("remove missing card succeeded")
	}
}
