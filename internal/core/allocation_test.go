package core

import (
	"math"
	"testing"
)

func TestNormalizeAllocationsSumsToOne(t *testing.T) {
	people := []string{"A", "B", "C"}
	cases := []struct {
		name string
		raw  map[string]float64
	}{
		{"proportional", map[string]float64{"A": 2, "B": 1, "C": 1}},
		{"empty raw", map[string]float64{}},
		{"nil raw", nil},
		{"all zero", map[string]float64{"A": 0, "B": 0, "C": 0}},
		{"negative clamped", map[string]float64{"A": -5, "B": 3, "C": 1}},
		{"stale name ignored", map[string]float64{"A": 1, "Gone": 7}},
		{"missing people", map[string]float64{"B": 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeAllocations(tc.raw, people)
			sum := 0.0
			for _, p := range people {
				v := got[p]
				if v < 0 {
					t.Fatalf("share for %s is negative: %v", p, v)
				}
				sum += v
			}
			if math.Abs(sum-1.0) > 1e-9 {
				t.Fatalf("shares sum to %v, want 1", sum)
			}
		})
	}
}

func TestNormalizeAllocationsEqualSplitFallback(t *testing.T) {
	people := []string{"A", "B", "C"}
	got := NormalizeAllocations(map[string]float64{}, people)
	for _, p := range people {
		if math.Abs(got[p]-1.0/3.0) > 1e-9 {
			t.Fatalf("share for %s = %v, want 1/3", p, got[p])
		}
	}
}

func TestNormalizeAllocationsProportional(t *testing.T) {
	got := NormalizeAllocations(map[string]float64{"A": 3, "B": 1}, []string{"A", "B"})
	if math.Abs(got["A"]-0.75) > 1e-9 || math.Abs(got["B"]-0.25) > 1e-9 {
		t.Fatalf("got %v, want A:0.75 B:0.25", got)
	}
}

func TestNormalizeAllocationsNegativeClamped(t *testing.T) {
	got := NormalizeAllocations(map[string]float64{"A": -2, "B": 1}, []string{"A", "B"})
	if got["A"] != 0 {
		t.Fatalf("negative share not clamped: %v", got["A"])
	}
	if math.Abs(got["B"]-1.0) > 1e-9 {
		t.Fatalf("B = %v, want 1", got["B"])
	}
}

func TestNormalizeAllocationsEmptyPeople(t *testing.T) {
	// Must not divide by zero; the result is vacuous but well formed.
	got := NormalizeAllocations(map[string]float64{"A": 1}, nil)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestNormalizeAllocationsIdempotent(t *testing.T) {
	people := []string{"A", "B", "C"}
	first := NormalizeAllocations(map[string]float64{"A": 5, "B": 3, "C": 2}, people)
	second := NormalizeAllocations(first, people)
	for _, p := range people {
		if math.Abs(first[p]-second[p]) > 1e-9 {
			t.Fatalf("share for %s changed: %v -> %v", p, first[p], second[p])
		}
	}
}

func TestNormalizeAllocationsStaleReferenceRedistributed(t *testing.T) {
	// A removed participant's weight must redistribute over the rest.
	got := NormalizeAllocations(map[string]float64{"Gone": 10, "A": 1, "B": 1}, []string{"A", "B"})
	if math.Abs(got["A"]-0.5) > 1e-9 || math.Abs(got["B"]-0.5) > 1e-9 {
		t.Fatalf("got %v, want A:0.5 B:0.5", got)
	}
}
