package engine

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/querycalc/internal/table"
)

// PairEntryBytes is the in-memory size of one materialized pair entry.
const PairEntryBytes = 16

const (
	// Joins smaller than this are built and sorted on one goroutine.
	parallelJoinThreshold = 1 << 16

	binsPerWorker = 4
	samplesPerBin = 32
)

// PairEntry is one row of the cross join of two tables P and Q.
//
// While the join is built Product holds p.Value*q.Value. Sealing the join
// rewrites it in place into the suffix sum from this entry to the end, so
// the finished structure costs PairEntryBytes per entry and nothing more.
type PairEntry struct {
	KeySum  float64
	Product float64
}

// SortedJoin is a materialized cross join ordered by ascending KeySum, with
// suffix sums over the products. It is read-only once Materialize returns
// and safe for concurrent readers.
//
// INVARIANTS:
//   - KeySum(i) is non-decreasing in i (NaN key sums sort first)
//   - Suffix(i) = sum of products of entries i..Len()-1; Suffix(Len()) = 0
type SortedJoin struct {
	entries []PairEntry
}

// Len returns the number of entries (|P|·|Q|).
func (j *SortedJoin) Len() int {
	return len(j.entries)
}

// KeySum returns the key sum of entry i.
func (j *SortedJoin) KeySum(i int) float64 {
	return j.entries[i].KeySum
}

// Suffix returns the sum of products from entry i to the end.
// i may equal Len(), which yields 0.
func (j *SortedJoin) Suffix(i int) float64 {
	if i >= len(j.entries) {
		return 0
	}
	return j.entries[i].Product
}

// SearchAbove returns the first index whose key sum is strictly greater
// than a, or Len() if there is none.
func (j *SortedJoin) SearchAbove(a float64) int {
	return sort.Search(len(j.entries), func(i int) bool {
		return j.entries[i].KeySum > a
	})
}

// WeightAbove returns the sum of products over all entries with KeySum > a.
func (j *SortedJoin) WeightAbove(a float64) float64 {
	return j.Suffix(j.SearchAbove(a))
}

// Materialize builds the cross join of p and q as a SortedJoin, with
// KeySum = p.Key + q.Key and Product = p.Value * q.Value.
//
// Large joins are built with sampled splitters: pass 1 counts entries per
// key-range bin, pass 2 places every entry into its bin inside one flat array,
// then bins are sorted concurrently. Entries are totally ordered by key sum and
// product, so the result is byte-identical for any worker count.
func Materialize(ctx context.Context, p, q []table.Row, workers int) (*SortedJoin, error) {
	m := len(p) * len(q)
	if m == 0 {
		return &SortedJoin{}, nil
	}
	if workers < 1 {
		workers = 1
	}

	var entries []PairEntry
	if workers == 1 || m < parallelJoinThreshold {
		entries = make([]PairEntry, 0, m)
		for _, pr := range p {
			for _, qr := range q {
				entries = append(entries, PairEntry{KeySum: pr.Key + qr.Key, Product: pr.Value * qr.Value})
			}
		}
		slices.SortFunc(entries, comparePairEntries)
	} else {
		var err error
		entries, err = binnedJoin(ctx, p, q, workers)
		if err != nil {
			return nil, err
		}
	}

	seal(entries)
	return &SortedJoin{entries: entries}, nil
}

func comparePairEntries(a, b PairEntry) int {
	if c := cmp.Compare(a.KeySum, b.KeySum); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Product, b.Product); c != 0 {
		return c
	}
	// 0 and -0 compare equal but are different bytes.
	if c := cmp.Compare(math.Float64bits(a.Product), math.Float64bits(b.Product)); c != 0 {
		return c
	}
	return cmp.Compare(math.Float64bits(a.KeySum), math.Float64bits(b.KeySum))
}

// seal turns products into suffix sums, right to left.
func seal(entries []PairEntry) {
	var run float64
	for i := len(entries) - 1; i >= 0; i-- {
		run += entries[i].Product
		entries[i].Product = run
	}
}

// binnedJoin fills and sorts the join in parallel. p is split into one
// contiguous chunk per worker; each worker owns a disjoint slot range inside
// every bin, so pass 2 needs no synchronization.
func binnedJoin(ctx context.Context, p, q []table.Row, workers int) ([]PairEntry, error) {
	m := len(p) * len(q)
	splitters := sampleSplitters(p, q, workers*binsPerWorker)
	bins := len(splitters) + 1

	chunks := splitRange(len(p), workers)

	// Pass 1: count entries per (chunk, bin).
	counts := make([][]int, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for w, c := range chunks {
		counts[w] = make([]int, bins)
		g.Go(func() error {
			local := counts[w]
			for _, pr := range p[c.lo:c.hi] {
				if err := gctx.Err(); err != nil {
					return err
				}
				for _, qr := range q {
					local[binOf(splitters, pr.Key+qr.Key)]++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Lay out bins in order; inside a bin, chunk w's slots precede chunk w+1's.
	binStart := make([]int, bins+1)
	cursors := make([][]int, len(chunks))
	for w := range chunks {
		cursors[w] = make([]int, bins)
	}
	pos := 0
	for b := 0; b < bins; b++ {
		binStart[b] = pos
		for w := range chunks {
			cursors[w][b] = pos
			pos += counts[w][b]
		}
	}
	binStart[bins] = pos

	// Pass 2: place entries.
	entries := make([]PairEntry, m)
	g, gctx = errgroup.WithContext(ctx)
	for w, c := range chunks {
		g.Go(func() error {
			cur := cursors[w]
			for _, pr := range p[c.lo:c.hi] {
				if err := gctx.Err(); err != nil {
					return err
				}
				for _, qr := range q {
					key := pr.Key + qr.Key
					b := binOf(splitters, key)
					entries[cur[b]] = PairEntry{KeySum: key, Product: pr.Value * qr.Value}
					cur[b]++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Sort each bin in place.
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := 0; b < bins; b++ {
		lo, hi := binStart[b], binStart[b+1]
		if hi-lo < 2 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slices.SortFunc(entries[lo:hi], comparePairEntries)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("join bins sorted", "entries", m, "bins", bins, "workers", workers)
	return entries, nil
}

// sampleSplitters picks up to bins-1 ascending key sums that divide the join
// into bins of roughly equal size. The sample walks the virtual pair index
// space with a fixed stride, so it is deterministic.
func sampleSplitters(p, q []table.Row, bins int) []float64 {
	m := len(p) * len(q)
	n := min(m, bins*samplesPerBin)

	sample := make([]float64, 0, n)
	for j := 0; j < n; j++ {
		idx := int(int64(j) * int64(m) / int64(n))
		key := p[idx/len(q)].Key + q[idx%len(q)].Key
		if key != key {
			continue
		}
		sample = append(sample, key)
	}
	if len(sample) == 0 || bins < 2 {
		return nil
	}
	slices.Sort(sample)

	splitters := make([]float64, 0, bins-1)
	for k := 1; k < bins; k++ {
		splitters = append(splitters, sample[k*len(sample)/bins])
	}
	return splitters
}

// binOf returns the number of splitters <= key. NaN goes to bin 0, matching
// its position at the front of the sort order.
func binOf(splitters []float64, key float64) int {
	if key != key {
		return 0
	}
	lo, hi := 0, len(splitters)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if splitters[mid] <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

type span struct{ lo, hi int }

// splitRange divides [0, n) into at most parts contiguous, non-empty spans.
func splitRange(n, parts int) []span {
	if parts > n {
		parts = n
	}
	if parts < 1 {
		return nil
	}
	out := make([]span, 0, parts)
	for i := 0; i < parts; i++ {
		out = append(out, span{lo: i * n / parts, hi: (i + 1) * n / parts})
	}
	return out
}
