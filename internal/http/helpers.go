package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"splitledger/internal/core"
)

const maxBodyBytes = 1 << 20 // 1 MiB

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps the engine's sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUnknownExpense),
		errors.Is(err, core.ErrUnknownPerson),
		errors.Is(err, core.ErrUnknownCard):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrDuplicateName):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidRate),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrEmptyPayer):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// parseWindow extracts the optional inclusive date window from the
// start and end query parameters (YYYY-MM-DD).
func parseWindow(r *http.Request) (start, end *core.Date, err error) {
	if v := strings.TrimSpace(r.URL.Query().Get("start")); v != "" {
		d, perr := core.ParseDate(v)
		if perr != nil {
			return nil, nil, fmt.Errorf("start: %w", perr)
		}
		start = &d
	}
	if v := strings.TrimSpace(r.URL.Query().Get("end")); v != "" {
		d, perr := core.ParseDate(v)
		if perr != nil {
			return nil, nil, fmt.Errorf("end: %w", perr)
		}
		end = &d
	}
	return start, end, nil
}

// windowKey is the cache key for a date window.
func windowKey(start, end *core.Date) string {
	var b strings.Builder
	if start != nil {
		b.WriteString(start.String())
	}
	b.WriteByte('|')
	if end != nil {
		b.WriteString(end.String())
	}
	return b.String()
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
