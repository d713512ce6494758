package engine

import (
	"cmp"
	"container/heap"
	"slices"
)

// DefaultLimit is the LIMIT of the query.
const DefaultLimit = 10

// compareRank orders groups by S descending, then FirstRow ascending.
// NaN ranks above every number and 0 equals -0. FirstRow is unique per
// group, so this is a total order.
func compareRank(a, b *Group) int {
	if c := compareDesc(a.S, b.S); c != 0 {
		return c
	}
	return cmp.Compare(a.FirstRow, b.FirstRow)
}

// compareDesc is a descending float comparison with NaN above +Inf.
func compareDesc(x, y float64) int {
	xNaN, yNaN := x != x, y != y
	switch {
	case xNaN && yNaN:
		return 0
	case xNaN:
		return -1
	case yNaN:
		return 1
	}
	return cmp.Compare(y, x)
}

// rankHeap keeps the k best groups seen so far with the worst of them on top.
type rankHeap []*Group

func (h rankHeap) Len() int           { return len(h) }
func (h rankHeap) Less(i, j int) bool { return compareRank(h[i], h[j]) > 0 }
func (h rankHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *rankHeap) Push(x any) {
	*h = append(*h, x.(*Group))
}

func (h *rankHeap) Pop() any {
	old := *h
	n := len(old)
	g := old[n-1]
	*h = old[:n-1]
	return g
}

// TopK returns the k highest ranked groups in rank order. The input is not
// modified. Selection costs O(n log k); the k survivors are sorted at the end.
func TopK(groups []Group, k int) []Group {
	if k <= 0 || len(groups) == 0 {
		return nil
	}

	if len(groups) <= k {
		out := slices.Clone(groups)
		slices.SortFunc(out, func(a, b Group) int { return compareRank(&a, &b) })
		return out
	}

	h := make(rankHeap, 0, k)
	for i := range k {
		h = append(h, &groups[i])
	}
	heap.Init(&h)

	for i := k; i < len(groups); i++ {
		if compareRank(&groups[i], h[0]) < 0 {
			h[0] = &groups[i]
			heap.Fix(&h, 0)
		}
	}

	out := make([]Group, len(h))
	for i, g := range h {
		out[i] = *g
	}
	slices.SortFunc(out, func(a, b Group) int { return compareRank(&a, &b) })
	return out
}
