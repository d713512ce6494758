package harness

import (
	"fmt"
	"math"

	"github.com/roach88/querycalc/internal/table"
)

// CompareRows compares result rows position by position. Keys must match
// exactly (NaN matches NaN); aggregates within relative tolerance tol.
// It returns one message per mismatch, or nil.
func CompareRows(want, got []table.ResultRow, tol float64) []string {
	var msgs []string
	if len(want) != len(got) {
		msgs = append(msgs, fmt.Sprintf("got %d rows, want %d", len(got), len(want)))
	}
	for i := range min(len(want), len(got)) {
		w, g := want[i], got[i]
		if !sameKey(w.A, g.A) {
			msgs = append(msgs, fmt.Sprintf("row %d: a = %v, want %v", i+1, g.A, w.A))
			continue
		}
		if !Close(w.S, g.S, tol) {
			msgs = append(msgs, fmt.Sprintf("row %d (a=%v): s = %v, want %v", i+1, g.A, g.S, w.S))
		}
	}
	return msgs
}

// Close reports whether a and b agree within relative tolerance tol.
// Values below tol in magnitude compare absolutely.
func Close(a, b, tol float64) bool {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return math.IsNaN(a) && math.IsNaN(b)
	case math.IsInf(a, 0) || math.IsInf(b, 0):
		return a == b
	}
	diff := math.Abs(a - b)
	return diff <= tol || diff <= tol*math.Max(math.Abs(a), math.Abs(b))
}

func sameKey(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}
