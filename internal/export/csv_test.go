package export

import (
	"bytes"
	"strings"
	"testing"

	"splitledger/internal/core"
)

func mustDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q) error = %v", s, err)
	}
	return d
}

func TestEncodeAllocations(t *testing.T) {
	tests := []struct {
		name  string
		alloc map[string]float64
		want  string
	}{
		{"empty", nil, ""},
		{"single", map[string]float64{"Ana": 1}, "Ana:1"},
		{"sorted by name", map[string]float64{"Bob": 2, "Ana": 1}, "Ana:1;Bob:2"},
		{"fractional shares", map[string]float64{"Ana": 0.5, "Bob": 0.25}, "Ana:0.5;Bob:0.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeAllocations(tt.alloc); got != tt.want {
				t.Errorf("EncodeAllocations() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeAllocations(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]float64
		wantErr bool
	}{
		{"empty", "", map[string]float64{}, false},
		{"single", "Ana:1", map[string]float64{"Ana": 1}, false},
		{"multiple", "Ana:1;Bob:2.5", map[string]float64{"Ana": 1, "Bob": 2.5}, false},
		{"spaces tolerated", " Ana : 1 ; Bob : 2 ", map[string]float64{"Ana": 1, "Bob": 2}, false},
		{"trailing separator", "Ana:1;", map[string]float64{"Ana": 1}, false},
		{"missing share", "Ana", nil, true},
		{"empty name", ":1", nil, true},
		{"bad share", "Ana:abc", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAllocations(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeAllocations(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("DecodeAllocations(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for name, share := range tt.want {
				if got[name] != share {
					t.Errorf("DecodeAllocations(%q)[%s] = %v, want %v", tt.input, name, got[name], share)
				}
			}
		})
	}
}

func TestCSVRoundTrip(t *testing.T) {
	expenses := []core.Expense{
		{
			ID:          "exp-1",
			Date:        mustDate(t, "2024-03-01"),
			Payer:       "Ana",
			Card:        "Visa",
			Merchant:    "Grocer",
			Item:        "Weekly shop",
			Amount:      84.5,
			Allocations: map[string]float64{"Ana": 1, "Bob": 1},
			Notes:       "split evenly",
		},
		{
			ID:     "exp-2",
			Date:   mustDate(t, "2024-03-02"),
			Payer:  "Bob",
			Amount: 12,
		},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, expenses); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}

	if len(got) != len(expenses) {
		t.Fatalf("ReadCSV() returned %d expenses, want %d", len(got), len(expenses))
	}
	first := got[0]
	if first.ID != "exp-1" || first.Payer != "Ana" || first.Card != "Visa" {
		t.Errorf("first expense = %+v", first)
	}
	if first.Amount != 84.5 {
		t.Errorf("first.Amount = %v, want 84.5", first.Amount)
	}
	if first.Allocations["Bob"] != 1 {
		t.Errorf("first.Allocations = %v", first.Allocations)
	}
	if got[1].Amount != 12 {
		t.Errorf("second.Amount = %v, want 12", got[1].Amount)
	}
	if len(got[1].Allocations) != 0 {
		t.Errorf("second.Allocations = %v, want empty", got[1].Allocations)
	}
}

func TestReadCSVColumnOrderIndependent(t *testing.T) {
	input := "payer,amount,date,notes\nAna,10.00,2024-01-15,dinner\n"
	got, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ReadCSV() returned %d expenses, want 1", len(got))
	}
	if got[0].Payer != "Ana" || got[0].Amount != 10 || got[0].Notes != "dinner" {
		t.Errorf("expense = %+v", got[0])
	}
	if got[0].ID != "" {
		t.Errorf("ID = %q, want empty (assigned by caller)", got[0].ID)
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing date column", "payer,amount\nAna,10\n"},
		{"missing payer column", "date,amount\n2024-01-01,10\n"},
		{"bad date", "date,payer,amount\nJanuary 1,Ana,10\n"},
		{"bad amount", "date,payer,amount\n2024-01-01,Ana,ten\n"},
		{"negative amount", "date,payer,amount\n2024-01-01,Ana,-5\n"},
		{"bad allocations", "date,payer,amount,allocations\n2024-01-01,Ana,10,Bob\n"},
		{"empty payer", "date,payer,amount\n2024-01-01,,10\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
