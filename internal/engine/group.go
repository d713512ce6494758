package engine

import (
	"math"

	"github.com/roach88/querycalc/internal/table"
)

// Group is one distinct key of T1 with its running value sum.
//
// FirstRow is fixed when the group is created and is the only input to
// tie-breaking; nothing recomputes it from container iteration order.
type Group struct {
	A        float64 // group key
	XSum     float64 // sum of T1 values sharing A
	FirstRow int     // 1-based row of the first occurrence of A in T1
	S        float64 // final aggregate, written once by the aggregation stage
}

// canonicalNaN stands in for every NaN bit pattern so all NaN keys share a group.
var canonicalNaN = math.Float64bits(math.NaN())

// groupKey maps a key to its grouping identity. Keys are compared by bit
// pattern, so 0 and -0 are distinct groups while all NaNs collapse into one.
func groupKey(a float64) uint64 {
	if a != a {
		return canonicalNaN
	}
	return math.Float64bits(a)
}

// BuildGroups collapses T1 rows into one group per distinct key in a single
// left-to-right pass. The row position is the loop index, so the result is
// in first-occurrence order and FirstRow is strictly increasing.
func BuildGroups(rows []table.Row) []Group {
	index := make(map[uint64]int, min(len(rows), 1<<16))
	groups := make([]Group, 0, min(len(rows), 1<<16))

	for i, r := range rows {
		k := groupKey(r.Key)
		if gi, ok := index[k]; ok {
			groups[gi].XSum += r.Value
			continue
		}
		index[k] = len(groups)
		groups = append(groups, Group{A: r.Key, XSum: r.Value, FirstRow: i + 1})
	}

	return groups
}
