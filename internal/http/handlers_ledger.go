package http

import (
	"log/slog"
	"net/http"

	"splitledger/internal/core"
)

type cardPayload struct {
	Name         string  `json:"name"`
	CashbackRate float64 `json:"cashback_rate"`
}

type settingsPayload struct {
	ApplyCashbackAsDiscount bool `json:"apply_cashback_as_discount"`
}

type ledgerResponse struct {
	People                  []string         `json:"people"`
	Cards                   []cardPayload    `json:"cards"`
	Expenses                []expensePayload `json:"expenses"`
	ApplyCashbackAsDiscount bool             `json:"apply_cashback_as_discount"`
	Version                 int              `json:"version"`
}

func toLedgerResponse(l core.Ledger) ledgerResponse {
	resp := ledgerResponse{
		People:                  l.People,
		Cards:                   make([]cardPayload, 0, len(l.Cards)),
		Expenses:                make([]expensePayload, 0, len(l.Expenses)),
		ApplyCashbackAsDiscount: l.ApplyCashbackAsDiscount,
		Version:                 l.Version,
	}
	for _, c := range l.Cards {
		resp.Cards = append(resp.Cards, cardPayload{Name: c.Name, CashbackRate: c.CashbackRate})
	}
	for _, e := range l.Expenses {
		resp.Expenses = append(resp.Expenses, toExpensePayload(e))
	}
	return resp
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	l, err := s.service.Snapshot(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load ledger", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	writeJSON(w, http.StatusOK, toLedgerResponse(l))
}

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	l, err := s.service.Snapshot(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load ledger", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	people := l.People
	if people == nil {
		people = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"people": people})
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := sanitizeInput(req.Name)
	if err := s.service.AddPerson(r.Context(), name); err != nil {
		writeDomainError(w, err)
		return
	}

	s.invalidateDerived()
	writeJSON(w, http.StatusCreated, map[string]string{"name": name})
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.service.RemovePerson(r.Context(), name); err != nil {
		writeDomainError(w, err)
		return
	}

	s.invalidateDerived()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	l, err := s.service.Snapshot(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load ledger", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	cards := make([]cardPayload, 0, len(l.Cards))
	for _, c := range l.Cards {
		cards = append(cards, cardPayload{Name: c.Name, CashbackRate: c.CashbackRate})
	}
	writeJSON(w, http.StatusOK, map[string][]cardPayload{"cards": cards})
}

func (s *Server) handleAddCard(w http.ResponseWriter, r *http.Request) {
	var req cardPayload
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	card := core.Card{Name: sanitizeInput(req.Name), CashbackRate: req.CashbackRate}
	if err := s.service.AddCard(r.Context(), card); err != nil {
		writeDomainError(w, err)
		return
	}

	s.invalidateDerived()
	writeJSON(w, http.StatusCreated, cardPayload{Name: card.Name, CashbackRate: card.CashbackRate})
}

func (s *Server) handleRemoveCard(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemoveCard(r.Context(), r.PathValue("name")); err != nil {
		writeDomainError(w, err)
		return
	}

	s.invalidateDerived()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	l, err := s.service.Snapshot(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load ledger", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	writeJSON(w, http.StatusOK, settingsPayload{ApplyCashbackAsDiscount: l.ApplyCashbackAsDiscount})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsPayload
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.service.SetApplyCashbackAsDiscount(r.Context(), req.ApplyCashbackAsDiscount); err != nil {
		writeDomainError(w, err)
		return
	}

	s.invalidateDerived()
	writeJSON(w, http.StatusOK, req)
}
