package http

import (
	"log/slog"
	"net/http"

	"splitledger/internal/core"
)

type expensePayload struct {
	ID          string             `json:"id,omitempty"`
	Date        string             `json:"date"`
	Payer       string             `json:"payer"`
	Card        string             `json:"card,omitempty"`
	Merchant    string             `json:"merchant,omitempty"`
	Item        string             `json:"item,omitempty"`
	Amount      float64            `json:"amount"`
	Allocations map[string]float64 `json:"allocations,omitempty"`
	Notes       string             `json:"notes,omitempty"`
}

func toExpensePayload(e core.Expense) expensePayload {
	return expensePayload{
		ID:          e.ID,
		Date:        e.Date.String(),
		Payer:       e.Payer,
		Card:        e.Card,
		Merchant:    e.Merchant,
		Item:        e.Item,
		Amount:      e.Amount,
		Allocations: e.Allocations,
		Notes:       e.Notes,
	}
}

func (p expensePayload) toExpense() (core.Expense, error) {
	date, err := core.ParseDate(p.Date)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		ID:          p.ID,
		Date:        date,
		Payer:       sanitizeInput(p.Payer),
		Card:        sanitizeInput(p.Card),
		Merchant:    sanitizeInput(p.Merchant),
		Item:        sanitizeInput(p.Item),
		Amount:      p.Amount,
		Allocations: p.Allocations,
		Notes:       sanitizeInput(p.Notes),
	}, nil
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l, err := s.service.Snapshot(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load ledger", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load ledger")
		return
	}

	expenses := core.FilterByDate(l.Expenses, start, end)
	out := make([]expensePayload, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpensePayload(e))
	}
	writeJSON(w, http.StatusOK, map[string][]expensePayload{"expenses": out})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expensePayload
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	e, err := req.toExpense()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	id, err := s.service.CreateExpense(r.Context(), e)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.invalidateDerived()
	e.ID = id
	writeJSON(w, http.StatusCreated, toExpensePayload(e))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req expensePayload
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.ID = r.PathValue("id")

	e, err := req.toExpense()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.service.UpdateExpense(r.Context(), e); err != nil {
		writeDomainError(w, err)
		return
	}

	s.invalidateDerived()
	writeJSON(w, http.StatusOK, toExpensePayload(e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}

	s.invalidateDerived()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreviewAllocations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Allocations map[string]float64 `json:"allocations"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	normalized, err := s.service.PreviewAllocations(r.Context(), req.Allocations)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to preview allocations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to preview allocations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]map[string]float64{"allocations": normalized})
}

func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	count, err := s.service.ImportCSV(r.Context(), http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.invalidateDerived()
	writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="expenses.csv"`)
	if err := s.service.ExportCSV(r.Context(), w, start, end); err != nil {
		// Headers are already written; all we can do is log.
		slog.ErrorContext(r.Context(), "Failed to export CSV", "error", err)
	}
}
