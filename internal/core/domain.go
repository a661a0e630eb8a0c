package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type (
	// Date is a calendar date. Comparisons go through time.Time so that
	// windows order correctly even for non-canonical input.
	Date struct {
		time.Time
	}

	// Card is a payment instrument with a cashback rate (0.05 means 5%).
	Card struct {
		Name         string
		CashbackRate float64
	}

	// Expense is a single shared purchase. Allocations holds raw,
	// unnormalized shares per person; they need not sum to 1 and may
	// reference people who have since been removed from the ledger.
	Expense struct {
		ID          string
		Date        Date
		Payer       string
		Card        string
		Merchant    string
		Item        string
		Amount      float64
		Allocations map[string]float64
		Notes       string
	}

	// Ledger is the aggregate root: the ordered participant set, the
	// known cards, all expenses and the cashback policy flag. When
	// ApplyCashbackAsDiscount is set, the split base of an expense is
	// amount*(1-rate) instead of the full amount.
	Ledger struct {
		People                  []string
		Cards                   []Card
		Expenses                []Expense
		ApplyCashbackAsDiscount bool
		Version                 int
	}

	// SummaryEntry is the derived per-person aggregate. Net is paid
	// minus consumed: positive means the person is owed money.
	SummaryEntry struct {
		Paid             float64
		Consumed         float64
		Net              float64
		Cashback         float64
		NetAfterCashback float64
	}

	// Transfer is a suggested settlement payment from a debtor to a
	// creditor.
	Transfer struct {
		From   string
		To     string
		Amount float64
	}
)

var (
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidRate    = errors.New("cashback rate must be between 0 and 1")
	ErrEmptyName      = errors.New("empty name")
	ErrEmptyPayer     = errors.New("empty payer")
	ErrDuplicateName  = errors.New("duplicate name")
	ErrUnknownPerson  = errors.New("unknown person")
	ErrUnknownCard    = errors.New("unknown card")
	ErrUnknownExpense = errors.New("unknown expense")
)

const dateLayout = "2006-01-02"

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// Today returns the current calendar date in UTC.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// MarshalJSON renders the date in ISO form (YYYY-MM-DD).
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (c Card) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.CashbackRate < 0 || c.CashbackRate > 1 {
		return ErrInvalidRate
	}
	return nil
}

// Validate checks the fields an editor must get right before an expense
// is stored. Allocation drift (stale names, shares not summing to 1) is
// deliberately not an error: the engine normalizes on read.
func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Payer) == "" {
		return ErrEmptyPayer
	}
	if e.Amount < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// HasPerson reports whether name is a current participant.
func (l Ledger) HasPerson(name string) bool {
	for _, p := range l.People {
		if p == name {
			return true
		}
	}
	return false
}

// CardRate returns the cashback rate for a card name, or 0 when the
// card is unknown or has been removed.
func (l Ledger) CardRate(name string) float64 {
	for _, c := range l.Cards {
		if c.Name == name {
			return c.CashbackRate
		}
	}
	return 0
}

// Clone returns a deep copy so callers can hand the engine an immutable
// snapshot while an editor keeps mutating the source.
func (l Ledger) Clone() Ledger {
	out := Ledger{
		People:                  append([]string(nil), l.People...),
		Cards:                   append([]Card(nil), l.Cards...),
		ApplyCashbackAsDiscount: l.ApplyCashbackAsDiscount,
		Version:                 l.Version,
	}
	out.Expenses = make([]Expense, len(l.Expenses))
	for i, e := range l.Expenses {
		alloc := make(map[string]float64, len(e.Allocations))
		for k, v := range e.Allocations {
			alloc[k] = v
		}
		e.Allocations = alloc
		out.Expenses[i] = e
	}
	return out
}
