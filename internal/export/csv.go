// Package export moves expenses in and out of the ledger as flat rows,
// for CSV files and for the spreadsheet export.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"splitledger/internal/core"
)

var csvHeader = []string{"id", "date", "payer", "card", "merchant", "item", "amount", "allocations", "notes"}

// EncodeAllocations renders raw shares as "name:share;name:share" with
// names sorted for stable output. An empty map encodes to "".
func EncodeAllocations(alloc map[string]float64) string {
	if len(alloc) == 0 {
		return ""
	}
	names := make([]string, 0, len(alloc))
	for name := range alloc {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+":"+strconv.FormatFloat(alloc[name], 'f', -1, 64))
	}
	return strings.Join(parts, ";")
}

// DecodeAllocations parses the "name:share;name:share" encoding.
// An empty string decodes to an empty map (equal split downstream).
func DecodeAllocations(s string) (map[string]float64, error) {
	alloc := make(map[string]float64)
	s = strings.TrimSpace(s)
	if s == "" {
		return alloc, nil
	}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.LastIndex(part, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid allocation entry %q", part)
		}
		name := strings.TrimSpace(part[:idx])
		if name == "" {
			return nil, fmt.Errorf("invalid allocation entry %q: empty name", part)
		}
		share, err := strconv.ParseFloat(strings.TrimSpace(part[idx+1:]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid allocation share in %q: %w", part, err)
		}
		alloc[name] = share
	}
	return alloc, nil
}

// WriteCSV writes expenses as CSV rows with a header line.
func WriteCSV(w io.Writer, expenses []core.Expense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range expenses {
		row := []string{
			e.ID,
			e.Date.String(),
			e.Payer,
			e.Card,
			e.Merchant,
			e.Item,
			strconv.FormatFloat(e.Amount, 'f', 2, 64),
			EncodeAllocations(e.Allocations),
			e.Notes,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write expense %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses expenses from CSV input. The header row is required and
// columns are matched by name, so column order does not matter. Rows
// without an id get one assigned by the caller.
func ReadCSV(r io.Reader) ([]core.Expense, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "payer", "amount"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var expenses []core.Expense
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++

		date, err := core.ParseDate(field(row, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		amount, err := core.ParseAmount(field(row, "amount"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		alloc, err := DecodeAllocations(field(row, "allocations"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		e := core.Expense{
			ID:          field(row, "id"),
			Date:        date,
			Payer:       field(row, "payer"),
			Card:        field(row, "card"),
			Merchant:    field(row, "merchant"),
			Item:        field(row, "item"),
			Amount:      amount,
			Allocations: alloc,
			Notes:       field(row, "notes"),
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		expenses = append(expenses, e)
	}
	return expenses, nil
}
