package core

import "sort"

// DefaultEps is the tolerance under which a balance counts as settled.
const DefaultEps = 1e-6

type balance struct {
	name   string
	amount float64
}

// Settle reduces net balances to a list of point-to-point transfers
// that discharge every balance larger than eps. People order fixes the
// tie-break: creditors and debtors are sorted descending by amount with
// a stable sort, so equal amounts keep ledger order. The matching is
// greedy (largest debtor pays largest creditor); it terminates in at
// most len(debtors)+len(creditors)-1 steps and makes no attempt to
// minimize the transfer count.
func Settle(people []string, net map[string]float64, eps float64) []Transfer {
	if eps <= 0 {
		eps = DefaultEps
	}

	var creditors, debtors []balance
	for _, p := range orderedNames(people, net) {
		v := net[p]
		switch {
		case v > eps:
			creditors = append(creditors, balance{name: p, amount: v})
		case v < -eps:
			debtors = append(debtors, balance{name: p, amount: -v})
		}
	}
	sort.SliceStable(creditors, func(i, j int) bool { return creditors[i].amount > creditors[j].amount })
	sort.SliceStable(debtors, func(i, j int) bool { return debtors[i].amount > debtors[j].amount })

	transfers := []Transfer{}
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		d, c := &debtors[i], &creditors[j]
		x := d.amount
		if c.amount < x {
			x = c.amount
		}
		if x > eps {
			transfers = append(transfers, Transfer{From: d.name, To: c.name, Amount: x})
		}
		d.amount -= x
		c.amount -= x
		if d.amount <= eps {
			i++
		}
		if c.amount <= eps {
			j++
		}
	}
	return transfers
}

// orderedNames walks people first, then any balance-only names in
// sorted order, so the result is deterministic even when the net map
// mentions someone outside the ledger.
func orderedNames(people []string, net map[string]float64) []string {
	seen := make(map[string]bool, len(people))
	out := make([]string, 0, len(net))
	for _, p := range people {
		if _, ok := net[p]; ok && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	var extra []string
	for p := range net {
		if !seen[p] {
			extra = append(extra, p)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
