package http

import (
	"log/slog"
	"net/http"
	"sort"

	"splitledger/internal/core"
)

type summaryEntryPayload struct {
	Person           string  `json:"person"`
	Paid             float64 `json:"paid"`
	Consumed         float64 `json:"consumed"`
	Cashback         float64 `json:"cashback"`
	Net              float64 `json:"net"`
	NetAfterCashback float64 `json:"net_after_cashback"`
}

type summaryResponse struct {
	Start   string                `json:"start,omitempty"`
	End     string                `json:"end,omitempty"`
	Entries []summaryEntryPayload `json:"entries"`
}

type transferPayload struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := windowKey(start, end)
	if resp, found := s.summaryCache.Get(key); found {
		slog.DebugContext(r.Context(), "Summary cache hit", "window", key)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	l, err := s.service.Snapshot(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load ledger", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	summary := core.Summarize(l, start, end)

	resp := summaryResponse{Entries: make([]summaryEntryPayload, 0, len(summary))}
	if start != nil {
		resp.Start = start.String()
	}
	if end != nil {
		resp.End = end.String()
	}
	for _, person := range summaryOrder(l.People, summary) {
		e := summary[person]
		resp.Entries = append(resp.Entries, summaryEntryPayload{
			Person:           person,
			Paid:             e.Paid,
			Consumed:         e.Consumed,
			Cashback:         e.Cashback,
			Net:              e.Net,
			NetAfterCashback: e.NetAfterCashback,
		})
	}

	s.summaryCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := windowKey(start, end)
	transfers, found := s.transfersCache.Get(key)
	if found {
		slog.DebugContext(r.Context(), "Transfers cache hit", "window", key)
	} else {
		transfers, err = s.service.Transfers(r.Context(), start, end)
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to compute transfers", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to compute transfers")
			return
		}
		s.transfersCache.Set(key, transfers)
	}

	out := make([]transferPayload, 0, len(transfers))
	for _, tr := range transfers {
		out = append(out, transferPayload{From: tr.From, To: tr.To, Amount: tr.Amount})
	}
	writeJSON(w, http.StatusOK, map[string][]transferPayload{"transfers": out})
}

// summaryOrder walks the ledger's participant order first, then any
// remaining names sorted.
func summaryOrder(people []string, summary map[string]core.SummaryEntry) []string {
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
