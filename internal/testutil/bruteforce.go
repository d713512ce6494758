package testutil

import (
	"math"
	"sort"

	"github.com/roach88/querycalc/internal/table"
)

// BruteForce evaluates the query with a direct triple loop. It shares no
// code with the engine and serves as the reference in property tests.
//
// Groups are keyed by bit pattern with NaNs merged, ranked by s descending
// with NaN first, and ties keep first-occurrence order.
func BruteForce(t1, t2, t3 []table.Row, limit int) []table.ResultRow {
	type group struct {
		a, x, s float64
	}
	var groups []*group
	index := map[uint64]*group{}
	for _, r := range t1 {
		k := math.Float64bits(r.Key)
		if math.IsNaN(r.Key) {
			k = math.Float64bits(math.NaN())
		}
		if g, ok := index[k]; ok {
			g.x += r.Value
			continue
		}
		g := &group{a: r.Key, x: r.Value}
		index[k] = g
		groups = append(groups, g)
	}

	for _, g := range groups {
		var acc float64
		matched := false
		for _, r2 := range t2 {
			for _, r3 := range t3 {
				if g.a < r2.Key+r3.Key {
					acc += r2.Value * r3.Value
					matched = true
				}
			}
		}
		if matched {
			g.s = 0 + g.x*acc
		}
	}

	// groups is in first-occurrence order; a stable sort keeps it on ties.
	sort.SliceStable(groups, func(i, j int) bool {
		si, sj := groups[i].s, groups[j].s
		if math.IsNaN(si) || math.IsNaN(sj) {
			return math.IsNaN(si) && !math.IsNaN(sj)
		}
		return si > sj
	})

	if len(groups) > limit {
		groups = groups[:limit]
	}
	out := make([]table.ResultRow, len(groups))
	for i, g := range groups {
		out[i] = table.ResultRow{A: g.a, S: g.s}
	}
	return out
}

// RelClose reports whether a and b agree within relative tolerance tol.
// NaNs match each other and infinities must be equal.
func RelClose(a, b, tol float64) bool {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return math.IsNaN(a) && math.IsNaN(b)
	case math.IsInf(a, 0) || math.IsInf(b, 0):
		return a == b
	}
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	return diff <= tol*scale || diff <= tol
}
