// Package memory implements the ledger store as an in-memory structure
// with optional JSON snapshot persistence. It is the default backend
// for local use and the test double for everything above the storage
// layer.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"splitledger/internal/core"
	"splitledger/internal/ledger"
)

// Ensure interface conformance
var _ ledger.Store = (*Store)(nil)

type Store struct {
	mu   sync.Mutex
	path string // when set, every mutation rewrites the snapshot file
	l    core.Ledger
}

// ledgerDoc is the on-disk JSON shape.
type ledgerDoc struct {
	Version                 int            `json:"version"`
	People                  []string       `json:"people"`
	ApplyCashbackAsDiscount bool           `json:"apply_cashback_as_discount"`
	Cards                   []cardDoc      `json:"cards"`
	Expenses                []expenseDoc   `json:"expenses"`
}

type cardDoc struct {
	Name         string  `json:"name"`
	CashbackRate float64 `json:"cashback_rate"`
}

type expenseDoc struct {
	ID          string             `json:"id"`
	Date        string             `json:"date"`
	Payer       string             `json:"payer"`
	Card        string             `json:"card"`
	Merchant    string             `json:"merchant"`
	Item        string             `json:"item"`
	Amount      float64            `json:"amount"`
	Allocations map[string]float64 `json:"allocations"`
	Notes       string             `json:"notes,omitempty"`
}

// New creates a store seeded with the given ledger.
func New(l core.Ledger) *Store {
	if l.Version == 0 {
		l.Version = 1
	}
	return &Store{l: l.Clone()}
}

// NewFromFile loads the snapshot at path, falling back to a fresh
// ledger with a single zero-rate card when the file does not exist.
// Mutations rewrite the snapshot.
func NewFromFile(path string) *Store {
	s := &Store{path: path}
	l, err := readSnapshot(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed reading ledger snapshot, starting fresh", "path", path, "error", err)
		}
		l = core.Ledger{
			Cards:                   []core.Card{{Name: "Default 0%", CashbackRate: 0}},
			ApplyCashbackAsDiscount: true,
			Version:                 1,
		}
	}
	s.l = l
	return s
}

// Load implements ledger.Reader.
func (s *Store) Load(_ context.Context) (core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.Clone(), nil
}

// AddExpense implements ledger.ExpenseWriter.
func (s *Store) AddExpense(_ context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.ID) == "" {
		return core.ErrUnknownExpense
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.l.Expenses {
		if existing.ID == e.ID {
			return core.ErrDuplicateName
		}
	}
	s.l.Expenses = append(s.l.Expenses, copyExpense(e))
	return s.save()
}

// UpdateExpense implements ledger.ExpenseWriter.
func (s *Store) UpdateExpense(_ context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.l.Expenses {
		if existing.ID == e.ID {
			s.l.Expenses[i] = copyExpense(e)
			return s.save()
		}
	}
	return core.ErrUnknownExpense
}

// DeleteExpense implements ledger.ExpenseWriter.
func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.l.Expenses {
		if existing.ID == id {
			s.l.Expenses = append(s.l.Expenses[:i], s.l.Expenses[i+1:]...)
			return s.save()
		}
	}
	return core.ErrUnknownExpense
}

// AddPerson implements ledger.PeopleWriter.
func (s *Store) AddPerson(_ context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.l.HasPerson(name) {
		return core.ErrDuplicateName
	}
	s.l.People = append(s.l.People, name)
	return s.save()
}

// RemovePerson implements ledger.PeopleWriter. The raw-share entries of
// the removed person are dropped from every expense.
func (s *Store) RemovePerson(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, p := range s.l.People {
		if p == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return core.ErrUnknownPerson
	}
	s.l.People = append(s.l.People[:idx], s.l.People[idx+1:]...)
	for i := range s.l.Expenses {
		delete(s.l.Expenses[i].Allocations, name)
	}
	return s.save()
}

// AddCard implements ledger.CardWriter.
func (s *Store) AddCard(_ context.Context, c core.Card) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.l.Cards {
		if existing.Name == c.Name {
			return core.ErrDuplicateName
		}
	}
	s.l.Cards = append(s.l.Cards, c)
	return s.save()
}

// RemoveCard implements ledger.CardWriter. Expenses keep referencing
// the removed name; their rate degrades to zero on read.
func (s *Store) RemoveCard(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.l.Cards {
		if existing.Name == name {
			s.l.Cards = append(s.l.Cards[:i], s.l.Cards[i+1:]...)
			return s.save()
		}
	}
	return core.ErrUnknownCard
}

// SetApplyCashbackAsDiscount implements ledger.SettingsWriter.
func (s *Store) SetApplyCashbackAsDiscount(_ context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.l.ApplyCashbackAsDiscount = enabled
	return s.save()
}

// save rewrites the snapshot file. Callers hold the mutex.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	doc := toDoc(s.l)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger snapshot: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write ledger snapshot: %w", err)
	}
	return nil
}

func readSnapshot(path string) (core.Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Ledger{}, err
	}
	var doc ledgerDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return core.Ledger{}, fmt.Errorf("parse ledger snapshot: %w", err)
	}
	return fromDoc(doc)
}

func toDoc(l core.Ledger) ledgerDoc {
	doc := ledgerDoc{
		Version:                 l.Version,
		People:                  append([]string{}, l.People...),
		ApplyCashbackAsDiscount: l.ApplyCashbackAsDiscount,
		Cards:                   make([]cardDoc, 0, len(l.Cards)),
		Expenses:                make([]expenseDoc, 0, len(l.Expenses)),
	}
	for _, c := range l.Cards {
		doc.Cards = append(doc.Cards, cardDoc{Name: c.Name, CashbackRate: c.CashbackRate})
	}
	for _, e := range l.Expenses {
		doc.Expenses = append(doc.Expenses, expenseDoc{
			ID:          e.ID,
			Date:        e.Date.String(),
			Payer:       e.Payer,
			Card:        e.Card,
			Merchant:    e.Merchant,
			Item:        e.Item,
			Amount:      e.Amount,
			Allocations: e.Allocations,
			Notes:       e.Notes,
		})
	}
	return doc
}

func fromDoc(doc ledgerDoc) (core.Ledger, error) {
	l := core.Ledger{
		Version:                 doc.Version,
		People:                  doc.People,
		ApplyCashbackAsDiscount: doc.ApplyCashbackAsDiscount,
	}
	if l.Version == 0 {
		l.Version = 1
	}
	for _, c := range doc.Cards {
		l.Cards = append(l.Cards, core.Card{Name: c.Name, CashbackRate: c.CashbackRate})
	}
	for _, e := range doc.Expenses {
		d, err := core.ParseDate(e.Date)
		if err != nil {
			return core.Ledger{}, fmt.Errorf("expense %s: %w", e.ID, err)
		}
		alloc := e.Allocations
		if alloc == nil {
			alloc = map[string]float64{}
		}
		l.Expenses = append(l.Expenses, core.Expense{
			ID:          e.ID,
			Date:        d,
			Payer:       e.Payer,
			Card:        e.Card,
			Merchant:    e.Merchant,
			Item:        e.Item,
			Amount:      e.Amount,
			Allocations: alloc,
			Notes:       e.Notes,
		})
	}
	return l, nil
}

func copyExpense(e core.Expense) core.Expense {
	alloc := make(map[string]float64, len(e.Allocations))
	for k, v := range e.Allocations {
		alloc[k] = v
	}
	e.Allocations = alloc
	return e
}
