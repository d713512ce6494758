package engine

import (
	"context"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/querycalc/internal/table"
)

// chunksPerWorker controls how finely groups are split across workers.
const chunksPerWorker = 4

// AggregateJoin sets g.S = g.XSum * Σ product over join entries with
// KeySum > g.A, for every group. Each lookup is one binary search and one
// suffix read, O(log m).
//
// Groups are processed in parallel; every worker writes only the S fields of
// its own contiguous chunk and reads the immutable join.
func AggregateJoin(ctx context.Context, groups []Group, join *SortedJoin, workers int) error {
	return forEachChunk(ctx, len(groups), workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			g := &groups[i]
			idx := join.SearchAbove(g.A)
			g.S = groupSum(g.XSum, join.Suffix(idx), idx < join.Len())
		}
	})
}

// sortedSide is one table sorted by key with suffix sums over its values.
// It is the probed side of a probe strategy.
type sortedSide struct {
	rows   []table.Row
	suffix []float64 // len(rows)+1, suffix[len(rows)] == 0
}

func newSortedSide(rows []table.Row) *sortedSide {
	sorted := slices.Clone(rows)
	slices.SortFunc(sorted, func(a, b table.Row) int {
		return comparePairEntries(PairEntry{a.Key, a.Value}, PairEntry{b.Key, b.Value})
	})

	suffix := make([]float64, len(sorted)+1)
	for i := len(sorted) - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + sorted[i].Value
	}
	return &sortedSide{rows: sorted, suffix: suffix}
}

// weightAbove returns Σ value over rows r with outer + r.Key > a, and
// whether any row matched.
//
// Float addition is monotone, so for fixed outer the predicate holds on a
// suffix of the key-sorted rows; the search evaluates the exact predicate
// rather than a rearranged a - outer < r.Key.
func (s *sortedSide) weightAbove(outer, a float64) (float64, bool) {
	idx := sort.Search(len(s.rows), func(i int) bool {
		return outer+s.rows[i].Key > a
	})
	return s.suffix[idx], idx < len(s.rows)
}

// AggregateProbe evaluates the query over the pair (T1 groups × outer)
// without materializing it: for each group and each outer row, the inner
// rows satisfying a < outer.Key + inner.Key form a suffix of the key-sorted
// inner table, so
//
//	g.S = g.XSum * Σ_outer outer.Value * Σ_{inner: a < outer.Key+inner.Key} inner.Value
//
// Outer rows are visited in file order, so each group's sum is deterministic.
// Memory is O(|outer| + |inner|); time O(G·|outer|·log|inner|).
func AggregateProbe(ctx context.Context, groups []Group, outer, inner []table.Row, workers int) error {
	if len(outer) == 0 || len(inner) == 0 {
		for i := range groups {
			groups[i].S = 0
		}
		return nil
	}

	side := newSortedSide(inner)
	return forEachChunk(ctx, len(groups), workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			g := &groups[i]
			var acc float64
			matched := false
			for _, o := range outer {
				w, ok := side.weightAbove(o.Key, g.A)
				if !ok {
					continue
				}
				acc += o.Value * w
				matched = true
			}
			g.S = groupSum(g.XSum, acc, matched)
		}
	})
}

// groupSum is the final aggregate of a group. SQL sums start from +0, so a
// group without any matching pair reports 0 and an all-zero sum is never -0.
func groupSum(xSum, weight float64, matched bool) float64 {
	if !matched {
		return 0
	}
	return 0 + xSum*weight
}

// forEachChunk splits [0, n) into contiguous chunks and runs fn on each,
// with at most workers chunks in flight.
func forEachChunk(ctx context.Context, n, workers int, fn func(lo, hi int)) error {
	if n == 0 {
		return nil
	}
	if workers <= 1 {
		fn(0, n)
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, c := range splitRange(n, workers*chunksPerWorker) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(c.lo, c.hi)
			return nil
		})
	}
	return g.Wait()
}
