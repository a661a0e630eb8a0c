package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"splitledger/internal/core"
	"splitledger/internal/ledger/memory"
	"splitledger/internal/services"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.New(core.Ledger{
		People: []string{"Ana", "Bob"},
		Cards:  []core.Card{{Name: "Visa", CashbackRate: 0.1}},
	})
	svc := services.NewLedgerService(store, nil, 0)
	s := NewServer("127.0.0.1:0", svc)
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
	})
	return s
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	if rec := doRequest(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /readyz = %d, want 200", rec.Code)
	}
}

func TestParticipantLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/participants", `{"name":"Cleo"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/participants = %d, body %s", rec.Code, rec.Body.String())
	}

	// Duplicate is a conflict
	rec = doRequest(t, s, http.MethodPost, "/api/participants", `{"name":"Cleo"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate participant = %d, want 409", rec.Code)
	}

	// Empty name is rejected
	rec = doRequest(t, s, http.MethodPost, "/api/participants", `{"name":""}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty participant = %d, want 422", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/participants", "")
	var list struct {
		People []string `json:"people"`
	}
	decodeJSON(t, rec, &list)
	if len(list.People) != 3 || list.People[2] != "Cleo" {
		t.Errorf("people = %v, want [Ana Bob Cleo]", list.People)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/participants/Cleo", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE participant = %d, want 204", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/participants/Nobody", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("DELETE unknown participant = %d, want 404", rec.Code)
	}
}

func TestCardValidation(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/cards", `{"name":"Amex","cashback_rate":1.5}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid rate = %d, want 422", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/cards", `{"name":"Amex","cashback_rate":0.02}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("valid card = %d, want 201", rec.Code)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	s := newTestServer(t)

	body := `{"date":"2024-06-01","payer":"Ana","card":"Visa","amount":50,"allocations":{"Ana":1,"Bob":1}}`
	rec := doRequest(t, s, http.MethodPost, "/api/expenses", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/expenses = %d, body %s", rec.Code, rec.Body.String())
	}
	var created expensePayload
	decodeJSON(t, rec, &created)
	if created.ID == "" {
		t.Fatal("created expense has no ID")
	}

	rec = doRequest(t, s, http.MethodPost, "/api/expenses", `{"date":"June 1","payer":"Ana","amount":5}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid date = %d, want 422", rec.Code)
	}

	update := `{"date":"2024-06-01","payer":"Bob","card":"Visa","amount":60}`
	rec = doRequest(t, s, http.MethodPut, "/api/expenses/"+created.ID, update)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /api/expenses = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/api/expenses", "")
	var list struct {
		Expenses []expensePayload `json:"expenses"`
	}
	decodeJSON(t, rec, &list)
	if len(list.Expenses) != 1 || list.Expenses[0].Payer != "Bob" || list.Expenses[0].Amount != 60 {
		t.Errorf("expenses = %+v", list.Expenses)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/expenses/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE expense = %d, want 204", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/expenses/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("DELETE deleted expense = %d, want 404", rec.Code)
	}
}

func TestSummaryAndTransfersEndpoints(t *testing.T) {
	s := newTestServer(t)

	body := `{"date":"2024-06-01","payer":"Ana","amount":50}`
	if rec := doRequest(t, s, http.MethodPost, "/api/expenses", body); rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/expenses = %d", rec.Code)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/summary = %d", rec.Code)
	}
	var summary summaryResponse
	decodeJSON(t, rec, &summary)
	if len(summary.Entries) != 2 {
		t.Fatalf("summary entries = %+v", summary.Entries)
	}
	if summary.Entries[0].Person != "Ana" || summary.Entries[0].Paid != 50 {
		t.Errorf("first entry = %+v, want Ana paid 50", summary.Entries[0])
	}

	rec = doRequest(t, s, http.MethodGet, "/api/transfers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/transfers = %d", rec.Code)
	}
	var transfers struct {
		Transfers []transferPayload `json:"transfers"`
	}
	decodeJSON(t, rec, &transfers)
	if len(transfers.Transfers) != 1 {
		t.Fatalf("transfers = %+v", transfers.Transfers)
	}
	tr := transfers.Transfers[0]
	if tr.From != "Bob" || tr.To != "Ana" || tr.Amount != 25 {
		t.Errorf("transfer = %+v, want Bob pays Ana 25", tr)
	}

	// Window excluding the expense yields an empty plan
	rec = doRequest(t, s, http.MethodGet, "/api/transfers?start=2024-07-01", "")
	decodeJSON(t, rec, &transfers)
	if len(transfers.Transfers) != 0 {
		t.Errorf("windowed transfers = %+v, want none", transfers.Transfers)
	}

	// Bad window parameter
	rec = doRequest(t, s, http.MethodGet, "/api/summary?start=tomorrow", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad window = %d, want 400", rec.Code)
	}
}

func TestSummaryCacheInvalidation(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/summary", "")
	var before summaryResponse
	decodeJSON(t, rec, &before)
	if before.Entries[0].Paid != 0 {
		t.Fatalf("initial paid = %v, want 0", before.Entries[0].Paid)
	}

	body := `{"date":"2024-06-01","payer":"Ana","amount":10}`
	if rec := doRequest(t, s, http.MethodPost, "/api/expenses", body); rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/expenses = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/summary", "")
	var after summaryResponse
	decodeJSON(t, rec, &after)
	if after.Entries[0].Paid != 10 {
		t.Errorf("paid after write = %v, want 10 (cache must be invalidated)", after.Entries[0].Paid)
	}
}

func TestPreviewAllocationsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/allocations/preview", `{"allocations":{"Ana":3,"Bob":1,"Ghost":2}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/allocations/preview = %d", rec.Code)
	}
	var resp struct {
		Allocations map[string]float64 `json:"allocations"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Allocations["Ana"] != 0.75 || resp.Allocations["Bob"] != 0.25 {
		t.Errorf("allocations = %v, want Ana 0.75 Bob 0.25", resp.Allocations)
	}
	if _, ok := resp.Allocations["Ghost"]; ok {
		t.Error("unknown name kept in normalized allocations")
	}
}

func TestCSVEndpoints(t *testing.T) {
	s := newTestServer(t)

	csv := "date,payer,amount\n2024-06-01,Ana,30.00\n2024-06-02,Bob,12.00\n"
	req := httptest.NewRequest(http.MethodPost, "/api/expenses/import", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/expenses/import = %d, body %s", rec.Code, rec.Body.String())
	}
	var imported struct {
		Imported int `json:"imported"`
	}
	decodeJSON(t, rec, &imported)
	if imported.Imported != 2 {
		t.Errorf("imported = %d, want 2", imported.Imported)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/expenses/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/expenses/export = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("export Content-Type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Errorf("exported %d lines, want header plus 2 rows", len(lines))
	}

	// Malformed CSV is rejected
	req = httptest.NewRequest(http.MethodPost, "/api/expenses/import", strings.NewReader("date,payer\nbroken"))
	rec = httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad import = %d, want 422", rec.Code)
	}
}
