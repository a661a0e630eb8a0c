package core

// CardRates builds the card name to cashback rate lookup.
func CardRates(cards []Card) map[string]float64 {
	rates := make(map[string]float64, len(cards))
	for _, c := range cards {
		rates[c.Name] = c.CashbackRate
	}
	return rates
}

// SplitBase is the amount actually divided among consumers: the full
// amount, or amount*(1-rate) when cashback is applied as a discount.
func SplitBase(e Expense, rate float64, applyDiscount bool) float64 {
	if applyDiscount {
		return e.Amount * (1.0 - rate)
	}
	return e.Amount
}

// Cashback is the reward credited to the payer for an expense.
func Cashback(e Expense, rate float64) float64 {
	return e.Amount * rate
}

// FilterByDate keeps expenses inside the inclusive [start, end] window.
// A nil bound leaves that side open.
func FilterByDate(expenses []Expense, start, end *Date) []Expense {
	out := make([]Expense, 0, len(expenses))
	for _, e := range expenses {
		if start != nil && e.Date.Before(start.Time) {
			continue
		}
		if end != nil && e.Date.After(end.Time) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Summarize aggregates paid, consumed and cashback per current
// participant over the optional date window and derives net balances.
//
// Records whose payer has been removed from the ledger contribute
// nothing to paid or cashback (the money silently vanishes from that
// side) while their split base is still consumed by the current people.
// That asymmetry matches the historical behavior and is kept on
// purpose; see DESIGN.md.
func Summarize(l Ledger, start, end *Date) map[string]SummaryEntry {
	rates := CardRates(l.Cards)

	paid := make(map[string]float64, len(l.People))
	consumed := make(map[string]float64, len(l.People))
	cashback := make(map[string]float64, len(l.People))
	for _, p := range l.People {
		paid[p], consumed[p], cashback[p] = 0, 0, 0
	}

	for _, e := range FilterByDate(l.Expenses, start, end) {
		rate := rates[e.Card]
		base := SplitBase(e, rate, l.ApplyCashbackAsDiscount)
		alloc := NormalizeAllocations(e.Allocations, l.People)
		for _, p := range l.People {
			consumed[p] += base * alloc[p]
		}
		if _, ok := paid[e.Payer]; ok {
			paid[e.Payer] += e.Amount
			cashback[e.Payer] += Cashback(e, rate)
		}
	}

	out := make(map[string]SummaryEntry, len(l.People))
	for _, p := range l.People {
		net := paid[p] - consumed[p]
		out[p] = SummaryEntry{
			Paid:             paid[p],
			Consumed:         consumed[p],
			Net:              net,
			Cashback:         cashback[p],
			NetAfterCashback: net + cashback[p],
		}
	}
	return out
}

// NetBalances extracts the net column from a summary.
func NetBalances(summary map[string]SummaryEntry) map[string]float64 {
	net := make(map[string]float64, len(summary))
	for p, s := range summary {
		net[p] = s.Net
	}
	return net
}
