package core

import (
	"math"
	"testing"
)

func TestSettleGreedyMatching(t *testing.T) {
	people := []string{"A", "B", "C"}
	net := map[string]float64{"A": 30, "B": 10, "C": -40}

	got := Settle(people, net, DefaultEps)

	if len(got) != 2 {
		t.Fatalf("got %d transfers, want 2: %v", len(got), got)
	}
	// Largest creditor is served first.
	if got[0].From != "C" || got[0].To != "A" || math.Abs(got[0].Amount-30) > 1e-9 {
		t.Fatalf("first transfer = %+v, want C->A 30", got[0])
	}
	if got[1].From != "C" || got[1].To != "B" || math.Abs(got[1].Amount-10) > 1e-9 {
		t.Fatalf("second transfer = %+v, want C->B 10", got[1])
	}
}

func TestSettleDischargesAllBalances(t *testing.T) {
	people := []string{"A", "B", "C", "D", "E"}
	net := map[string]float64{"A": 25.5, "B": -10, "C": 4.5, "D": -12, "E": -8}

	transfers := Settle(people, net, DefaultEps)

	paidOut := map[string]float64{}
	received := map[string]float64{}
	for _, tr := range transfers {
		if tr.Amount <= 0 {
			t.Fatalf("non-positive transfer: %+v", tr)
		}
		paidOut[tr.From] += tr.Amount
		received[tr.To] += tr.Amount
	}
	for p, v := range net {
		switch {
		case v > DefaultEps:
			if math.Abs(received[p]-v) > 1e-6 {
				t.Fatalf("creditor %s received %v, want %v", p, received[p], v)
			}
		case v < -DefaultEps:
			if math.Abs(paidOut[p]+v) > 1e-6 {
				t.Fatalf("debtor %s paid %v, want %v", p, paidOut[p], -v)
			}
		default:
			if paidOut[p] != 0 || received[p] != 0 {
				t.Fatalf("settled participant %s appears in transfers", p)
			}
		}
	}
}

func TestSettleNoOpWithinEps(t *testing.T) {
	net := map[string]float64{"A": 1e-7, "B": -1e-7}
	if got := Settle([]string{"A", "B"}, net, 1e-6); len(got) != 0 {
		t.Fatalf("expected no transfers, got %v", got)
	}
}

func TestSettleEmptyInput(t *testing.T) {
	if got := Settle(nil, nil, DefaultEps); len(got) != 0 {
		t.Fatalf("expected no transfers, got %v", got)
	}
}

func TestSettleEpsConfigurable(t *testing.T) {
	net := map[string]float64{"A": 0.005, "B": -0.005}
	if got := Settle([]string{"A", "B"}, net, 0.01); len(got) != 0 {
		t.Fatalf("balance under eps settled anyway: %v", got)
	}
	got := Settle([]string{"A", "B"}, net, 0.001)
	if len(got) != 1 {
		t.Fatalf("got %v, want one transfer", got)
	}
	// Non-positive eps falls back to the default.
	got = Settle([]string{"A", "B"}, net, 0)
	if len(got) != 1 {
		t.Fatalf("got %v, want one transfer with default eps", got)
	}
}

func TestSettleStableTieBreak(t *testing.T) {
	// Equal credits keep ledger order.
	people := []string{"A", "B", "C"}
	net := map[string]float64{"A": 10, "B": 10, "C": -20}

	got := Settle(people, net, DefaultEps)
	if len(got) != 2 {
		t.Fatalf("got %d transfers, want 2", len(got))
	}
	if got[0].To != "A" || got[1].To != "B" {
		t.Fatalf("tie-break not stable: %v", got)
	}
}

func TestSettleBothSidesExhaustTogether(t *testing.T) {
	people := []string{"A", "B", "C", "D"}
	net := map[string]float64{"A": 20, "B": 5, "C": -20, "D": -5}

	got := Settle(people, net, DefaultEps)
	if len(got) != 2 {
		t.Fatalf("got %v, want exactly 2 transfers", got)
	}
	if got[0].From != "C" || got[0].To != "A" || math.Abs(got[0].Amount-20) > 1e-9 {
		t.Fatalf("first transfer = %+v, want C->A 20", got[0])
	}
	if got[1].From != "D" || got[1].To != "B" || math.Abs(got[1].Amount-5) > 1e-9 {
		t.Fatalf("second transfer = %+v, want D->B 5", got[1])
	}
}
