package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"splitledger/internal/core"
	"splitledger/internal/ledger"

	_ "modernc.org/sqlite"
)

// Ensure interface conformance
var _ ledger.Store = (*SQLiteRepository)(nil)

// SQLiteRepository persists the ledger in a single SQLite database.
// Expense allocations are stored as a JSON object column; the engine
// re-normalizes them on every read, so drifted shares are harmless.
type SQLiteRepository struct {
	db *sql.DB
}

// PendingExport is the minimal row the export worker needs to pick up
// an expense that has not reached the spreadsheet yet.
type PendingExport struct {
	ID        string
	CreatedAt time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load implements ledger.Reader.
func (r *SQLiteRepository) Load(ctx context.Context) (core.Ledger, error) {
	l := core.Ledger{Version: 1}

	rows, err := r.db.QueryContext(ctx, `SELECT name FROM people ORDER BY position`)
	if err != nil {
		return core.Ledger{}, fmt.Errorf("load people: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return core.Ledger{}, fmt.Errorf("scan person: %w", err)
		}
		l.People = append(l.People, name)
	}
	if err := rows.Err(); err != nil {
		return core.Ledger{}, fmt.Errorf("iterate people: %w", err)
	}

	cardRows, err := r.db.QueryContext(ctx, `SELECT name, cashback_rate FROM cards ORDER BY name`)
	if err != nil {
		return core.Ledger{}, fmt.Errorf("load cards: %w", err)
	}
	defer cardRows.Close()
	for cardRows.Next() {
		var c core.Card
		if err := cardRows.Scan(&c.Name, &c.CashbackRate); err != nil {
			return core.Ledger{}, fmt.Errorf("scan card: %w", err)
		}
		l.Cards = append(l.Cards, c)
	}
	if err := cardRows.Err(); err != nil {
		return core.Ledger{}, fmt.Errorf("iterate cards: %w", err)
	}

	expRows, err := r.db.QueryContext(ctx, `
		SELECT id, expense_date, payer, card, merchant, item, amount, allocations, notes
		FROM expenses
		WHERE deleted_at IS NULL
		ORDER BY expense_date, created_at`)
	if err != nil {
		return core.Ledger{}, fmt.Errorf("load expenses: %w", err)
	}
	defer expRows.Close()
	for expRows.Next() {
		e, err := scanExpense(expRows)
		if err != nil {
			return core.Ledger{}, err
		}
		l.Expenses = append(l.Expenses, e)
	}
	if err := expRows.Err(); err != nil {
		return core.Ledger{}, fmt.Errorf("iterate expenses: %w", err)
	}

	flag, err := r.getSetting(ctx, "apply_cashback_as_discount")
	if err != nil {
		return core.Ledger{}, err
	}
	l.ApplyCashbackAsDiscount = flag != "0"

	return l, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e         core.Expense
		dateStr   string
		allocJSON string
	)
	if err := row.Scan(&e.ID, &dateStr, &e.Payer, &e.Card, &e.Merchant, &e.Item, &e.Amount, &allocJSON, &e.Notes); err != nil {
		return core.Expense{}, fmt.Errorf("scan expense: %w", err)
	}
	d, err := core.ParseDate(dateStr)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s date: %w", e.ID, err)
	}
	e.Date = d
	e.Allocations = map[string]float64{}
	if allocJSON != "" {
		if err := json.Unmarshal([]byte(allocJSON), &e.Allocations); err != nil {
			return core.Expense{}, fmt.Errorf("expense %s allocations: %w", e.ID, err)
		}
	}
	return e, nil
}

// AddExpense implements ledger.ExpenseWriter.
func (r *SQLiteRepository) AddExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	allocJSON, err := json.Marshal(e.Allocations)
	if err != nil {
		return fmt.Errorf("marshal allocations: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO expenses (id, expense_date, payer, card, merchant, item, amount, allocations, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Date.String(), e.Payer, e.Card, e.Merchant, e.Item, e.Amount, string(allocJSON), e.Notes)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID,
		"payer", e.Payer,
		"amount", e.Amount,
		"date", e.Date.String())

	return nil
}

// UpdateExpense implements ledger.ExpenseWriter. Edited expenses go
// back to pending so the worker re-exports them.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	allocJSON, err := json.Marshal(e.Allocations)
	if err != nil {
		return fmt.Errorf("marshal allocations: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE expenses
		SET expense_date = ?, payer = ?, card = ?, merchant = ?, item = ?,
		    amount = ?, allocations = ?, notes = ?, export_status = 'pending'
		WHERE id = ? AND deleted_at IS NULL`,
		e.Date.String(), e.Payer, e.Card, e.Merchant, e.Item, e.Amount, string(allocJSON), e.Notes, e.ID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrUnknownExpense
	}
	return nil
}

// DeleteExpense implements ledger.ExpenseWriter via soft delete.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrUnknownExpense
	}
	slog.InfoContext(ctx, "Expense soft deleted", "id", id)
	return nil
}

// GetExpense returns a single live expense by ID.
func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, expense_date, payer, card, merchant, item, amount, allocations, notes
		FROM expenses WHERE id = ? AND deleted_at IS NULL`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrUnknownExpense
	}
	if err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. modernc.org/sqlite surfaces these as plain errors, so the
// message text is the only discriminator available.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// AddPerson implements ledger.PeopleWriter, appending at the end of the
// ordered participant set.
func (r *SQLiteRepository) AddPerson(ctx context.Context, name string) error {
	if name == "" {
		return core.ErrEmptyName
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO people (name, position)
		VALUES (?, COALESCE((SELECT MAX(position) + 1 FROM people), 0))`, name)
	if isUniqueViolation(err) {
		return core.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

// RemovePerson implements ledger.PeopleWriter. Allocations referencing
// the removed name are rewritten without it.
func (r *SQLiteRepository) RemovePerson(ctx context.Context, name string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM people WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrUnknownPerson
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, allocations FROM expenses WHERE allocations LIKE ?`, `%"`+name+`"%`)
	if err != nil {
		return fmt.Errorf("find allocations: %w", err)
	}
	type patch struct {
		id    string
		alloc string
	}
	var patches []patch
	for rows.Next() {
		var id, allocJSON string
		if err := rows.Scan(&id, &allocJSON); err != nil {
			rows.Close()
			return fmt.Errorf("scan allocations: %w", err)
		}
		alloc := map[string]float64{}
		if err := json.Unmarshal([]byte(allocJSON), &alloc); err != nil {
			rows.Close()
			return fmt.Errorf("parse allocations for %s: %w", id, err)
		}
		if _, ok := alloc[name]; !ok {
			continue
		}
		delete(alloc, name)
		updated, err := json.Marshal(alloc)
		if err != nil {
			rows.Close()
			return fmt.Errorf("marshal allocations for %s: %w", id, err)
		}
		patches = append(patches, patch{id: id, alloc: string(updated)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate allocations: %w", err)
	}

	for _, p := range patches {
		if _, err := tx.ExecContext(ctx,
			`UPDATE expenses SET allocations = ? WHERE id = ?`, p.alloc, p.id); err != nil {
			return fmt.Errorf("rewrite allocations for %s: %w", p.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Participant removed",
		"name", name,
		"rewritten_expenses", len(patches))

	return nil
}

// AddCard implements ledger.CardWriter.
func (r *SQLiteRepository) AddCard(ctx context.Context, c core.Card) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cards (name, cashback_rate) VALUES (?, ?)`, c.Name, c.CashbackRate)
	if isUniqueViolation(err) {
		return core.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

// RemoveCard implements ledger.CardWriter.
func (r *SQLiteRepository) RemoveCard(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrUnknownCard
	}
	return nil
}

// SetApplyCashbackAsDiscount implements ledger.SettingsWriter.
func (r *SQLiteRepository) SetApplyCashbackAsDiscount(ctx context.Context, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ('apply_cashback_as_discount', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, value)
	if err != nil {
		return fmt.Errorf("update setting: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) getSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, nil
}

// GetPendingExportExpenses returns expenses waiting for spreadsheet
// export, oldest first.
func (r *SQLiteRepository) GetPendingExportExpenses(ctx context.Context, limit int) ([]PendingExport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, created_at FROM expenses
		WHERE export_status = 'pending' AND deleted_at IS NULL
		ORDER BY created_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending export expenses: %w", err)
	}
	defer rows.Close()

	var out []PendingExport
	for rows.Next() {
		var p PendingExport
		if err := rows.Scan(&p.ID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkExported marks an expense as successfully exported.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET export_status = 'synced', exported_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	slog.InfoContext(ctx, "Expense marked as exported", "id", id)
	return nil
}

// MarkExportError marks an expense as having failed export.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET export_status = 'error' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	slog.WarnContext(ctx, "Expense marked with export error", "id", id)
	return nil
}
