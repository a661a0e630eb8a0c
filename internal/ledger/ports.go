package ledger

import (
	"context"

	"splitledger/internal/core"
)

// Ports for ledger storage backends. The engine only ever sees the
// snapshot returned by Reader; stores hand out copies, never shared
// mutable state.
type (
	Reader interface {
		// Load returns a consistent snapshot of the whole ledger.
		Load(ctx context.Context) (core.Ledger, error)
	}

	ExpenseWriter interface {
		AddExpense(ctx context.Context, e core.Expense) error
		UpdateExpense(ctx context.Context, e core.Expense) error
		DeleteExpense(ctx context.Context, id string) error
	}

	PeopleWriter interface {
		AddPerson(ctx context.Context, name string) error
		// RemovePerson drops the participant and their raw-share entry
		// from every stored expense; remaining shares renormalize on
		// read.
		RemovePerson(ctx context.Context, name string) error
	}

	CardWriter interface {
		AddCard(ctx context.Context, c core.Card) error
		RemoveCard(ctx context.Context, name string) error
	}

	SettingsWriter interface {
		SetApplyCashbackAsDiscount(ctx context.Context, enabled bool) error
	}

	// Store is the full backend contract composed from the ports above.
	Store interface {
		Reader
		ExpenseWriter
		PeopleWriter
		CardWriter
		SettingsWriter
	}
)
