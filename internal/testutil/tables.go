package testutil

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/querycalc/internal/table"
)

// FormatTable renders rows in the table file format with an accurate header.
func FormatTable(rows []table.Row) []byte {
	buf := strconv.AppendInt(nil, int64(len(rows)), 10)
	buf = append(buf, '\n')
	for _, r := range rows {
		buf = table.AppendNumber(buf, r.Key)
		buf = append(buf, ' ')
		buf = table.AppendNumber(buf, r.Value)
		buf = append(buf, '\n')
	}
	return buf
}

// WriteTable writes rows to dir/name and returns the path.
func WriteTable(t testing.TB, dir, name string, rows []table.Row) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, FormatTable(rows), 0o644))
	return path
}

// WriteFile writes raw content to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// RandomIntRows returns n rows with integer keys in [-keySpan, keySpan] and
// integer values in [-5, 5]. Every sum and product the query forms over
// such rows is exact in float64, so results can be compared with ==, ties
// included. A small keySpan produces repeated T1 keys.
func RandomIntRows(rng *rand.Rand, n, keySpan int) []table.Row {
	rows := make([]table.Row, n)
	for i := range rows {
		rows[i] = table.Row{
			Key:   float64(rng.IntN(2*keySpan+1) - keySpan),
			Value: float64(rng.IntN(11) - 5),
		}
	}
	return rows
}

// RandomFloatRows returns n rows with keys in [-scale, scale) and values in
// [-1, 1).
func RandomFloatRows(rng *rand.Rand, n int, scale float64) []table.Row {
	rows := make([]table.Row, n)
	for i := range rows {
		rows[i] = table.Row{
			Key:   (rng.Float64()*2 - 1) * scale,
			Value: rng.Float64()*2 - 1,
		}
	}
	return rows
}

// NewRand returns a deterministic generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
