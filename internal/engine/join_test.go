package engine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querycalc/internal/table"
	"github.com/roach88/querycalc/internal/testutil"
)

func TestMaterialize(t *testing.T) {
	p := []table.Row{{Key: 1, Value: 2}, {Key: 3, Value: 4}}
	q := []table.Row{{Key: 10, Value: 1}, {Key: 0, Value: 5}}

	j, err := Materialize(context.Background(), p, q, 1)
	require.NoError(t, err)
	require.Equal(t, 4, j.Len())

	// Entries (1,10) (3,20) (11,2) (13,4); suffix sums 36 26 6 4.
	keys := []float64{1, 3, 11, 13}
	suffix := []float64{36, 26, 6, 4, 0}
	for i := range keys {
		assert.Equal(t, keys[i], j.KeySum(i))
	}
	for i := range suffix {
		assert.Equal(t, suffix[i], j.Suffix(i))
	}

	assert.Equal(t, 0, j.SearchAbove(0))
	assert.Equal(t, 2, j.SearchAbove(3), "equal key sums are excluded")
	assert.Equal(t, 4, j.SearchAbove(13))
	assert.Equal(t, 36.0, j.WeightAbove(-1))
	assert.Equal(t, 6.0, j.WeightAbove(10))
	assert.Equal(t, 0.0, j.WeightAbove(100))
}

func TestMaterializeEmpty(t *testing.T) {
	rows := []table.Row{{Key: 1, Value: 1}}

	for _, tc := range []struct {
		name string
		p, q []table.Row
	}{
		{"empty p", nil, rows},
		{"empty q", rows, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			j, err := Materialize(context.Background(), tc.p, tc.q, 4)
			require.NoError(t, err)
			assert.Equal(t, 0, j.Len())
			assert.Equal(t, 0.0, j.WeightAbove(math.Inf(-1)))
		})
	}
}

func TestMaterializeParallelMatchesSequential(t *testing.T) {
	rng := testutil.NewRand(42)
	p := testutil.RandomFloatRows(rng, 300, 100)
	q := testutil.RandomFloatRows(rng, 300, 100)
	// Duplicate key sums exercise the product tie-break.
	q = append(q, testutil.RandomIntRows(rng, 20, 2)...)
	p = append(p, testutil.RandomIntRows(rng, 20, 2)...)
	require.GreaterOrEqual(t, len(p)*len(q), parallelJoinThreshold)

	want, err := Materialize(context.Background(), p, q, 1)
	require.NoError(t, err)

	for _, workers := range []int{2, 4, 7} {
		got, err := Materialize(context.Background(), p, q, workers)
		require.NoError(t, err)
		require.Equal(t, want.Len(), got.Len())
		for i := range want.entries {
			if math.Float64bits(want.entries[i].KeySum) != math.Float64bits(got.entries[i].KeySum) ||
				math.Float64bits(want.entries[i].Product) != math.Float64bits(got.entries[i].Product) {
				t.Fatalf("workers=%d: entry %d differs: %v vs %v", workers, i, want.entries[i], got.entries[i])
			}
		}
	}
}

func TestMaterializeInvariants(t *testing.T) {
	rng := testutil.NewRand(3)
	p := testutil.RandomFloatRows(rng, 40, 10)
	q := testutil.RandomFloatRows(rng, 60, 10)

	j, err := Materialize(context.Background(), p, q, 1)
	require.NoError(t, err)
	require.Equal(t, len(p)*len(q), j.Len())

	var total float64
	for _, pr := range p {
		for _, qr := range q {
			total += pr.Value * qr.Value
		}
	}
	assert.InDelta(t, total, j.Suffix(0), 1e-9)

	for i := 1; i < j.Len(); i++ {
		assert.LessOrEqual(t, j.KeySum(i-1), j.KeySum(i))
	}
	assert.Equal(t, 0.0, j.Suffix(j.Len()))
}

func TestMaterializeCanceled(t *testing.T) {
	rng := testutil.NewRand(9)
	p := testutil.RandomFloatRows(rng, 300, 1)
	q := testutil.RandomFloatRows(rng, 300, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Materialize(ctx, p, q, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComparePairEntriesSignedZero(t *testing.T) {
	negZero := math.Copysign(0, -1)
	a := PairEntry{KeySum: 1, Product: negZero}
	b := PairEntry{KeySum: 1, Product: 0}

	assert.NotZero(t, comparePairEntries(a, b))
	assert.Equal(t, -comparePairEntries(a, b), comparePairEntries(b, a))
}

func TestBinOf(t *testing.T) {
	splitters := []float64{1, 5, 5, 9}

	assert.Equal(t, 0, binOf(splitters, 0))
	assert.Equal(t, 1, binOf(splitters, 1))
	assert.Equal(t, 3, binOf(splitters, 5))
	assert.Equal(t, 4, binOf(splitters, 100))
	assert.Equal(t, 0, binOf(splitters, math.NaN()))
	assert.Equal(t, 0, binOf(nil, 3))
}

func TestSplitRange(t *testing.T) {
	assert.Equal(t, []span{{0, 3}, {3, 6}, {6, 10}}, splitRange(10, 3))
	assert.Equal(t, []span{{0, 1}, {1, 2}}, splitRange(2, 8))
	assert.Nil(t, splitRange(0, 4))
}
