package core

// NormalizeAllocations turns a raw per-person share mapping into a
// distribution over people. Negative shares are clamped to zero, names
// that are not current participants are ignored, and missing people
// count as zero. When nothing positive remains the amount is split
// equally; the denominator is floored at 1 so an empty participant set
// yields an empty (not panicking) result.
func NormalizeAllocations(raw map[string]float64, people []string) map[string]float64 {
	out := make(map[string]float64, len(people))
	sum := 0.0
	for _, p := range people {
		v := raw[p]
		if v < 0 {
			v = 0
		}
		out[p] = v
		sum += v
	}
	if sum <= 0 {
		n := len(people)
		if n < 1 {
			n = 1
		}
		for _, p := range people {
			out[p] = 1.0 / float64(n)
		}
		return out
	}
	for _, p := range people {
		out[p] /= sum
	}
	return out
}
