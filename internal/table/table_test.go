package table

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBasic(t *testing.T) {
	tbl, err := Decode(strings.NewReader("2\n1 10\n2 20\n"), "t1")
	require.NoError(t, err)

	assert.Equal(t, "t1", tbl.Name)
	assert.Equal(t, 2, tbl.Declared)
	assert.Equal(t, []Row{{Key: 1, Value: 10}, {Key: 2, Value: 20}}, tbl.Rows)
	assert.False(t, tbl.CountMismatch())
}

func TestDecodeToleratesCountMismatch(t *testing.T) {
	tests := []struct {
		name  string
		input string
		rows  int
	}{
		{"fewer lines than declared", "5\n1 1\n2 2\n", 2},
		{"more lines than declared", "1\n1 1\n2 2\n3 3\n", 3},
		{"declared zero with data", "0\n1 1\n", 1},
		{"huge declared count", "999999999\n1 1\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Decode(strings.NewReader(tt.input), "t")
			require.NoError(t, err)
			assert.Len(t, tbl.Rows, tt.rows)
			assert.True(t, tbl.CountMismatch())
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	t.Run("empty stream", func(t *testing.T) {
		tbl, err := Decode(strings.NewReader(""), "t")
		require.NoError(t, err)
		assert.Equal(t, 0, tbl.Len())
	})

	t.Run("header only", func(t *testing.T) {
		tbl, err := Decode(strings.NewReader("0\n"), "t")
		require.NoError(t, err)
		assert.Equal(t, 0, tbl.Len())
		assert.Equal(t, 0, tbl.Declared)
	})
}

func TestDecodeNumberForms(t *testing.T) {
	input := "4\n1.5e3 -2E-2\n\t7   8  \r\n0x1p-2 9 extra tokens\nInfinity NaN\n"
	tbl, err := Decode(strings.NewReader(input), "t")
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 4)

	assert.Equal(t, Row{Key: 1500, Value: -0.02}, tbl.Rows[0])
	assert.Equal(t, Row{Key: 7, Value: 8}, tbl.Rows[1])
	assert.Equal(t, Row{Key: 0.25, Value: 9}, tbl.Rows[2])
	assert.True(t, math.IsInf(tbl.Rows[3].Key, 1))
	assert.True(t, math.IsNaN(tbl.Rows[3].Value))
}

func TestDecodeOverflowBecomesInfinity(t *testing.T) {
	tbl, err := Decode(strings.NewReader("1\n1e400 -1e400\n"), "t")
	require.NoError(t, err)
	assert.True(t, math.IsInf(tbl.Rows[0].Key, 1))
	assert.True(t, math.IsInf(tbl.Rows[0].Value, -1))
}

func TestDecodeFormatErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"bad token", "2\n1 10\n2 abc\n", 3},
		{"single token", "1\n42\n", 2},
		{"blank line", "2\n1 1\n\n2 2\n", 3},
		{"bad header", "two\n1 1\n", 1},
		{"negative header", "-1\n1 1\n", 1},
		{"comma decimal", "1\n1,5 2\n", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input), "in.txt")
			require.Error(t, err)

			var fe *FormatError
			require.True(t, errors.As(err, &fe), "expected *FormatError, got %T", err)
			assert.Equal(t, tt.line, fe.Line)
			assert.Equal(t, "in.txt", fe.Path)
			assert.True(t, IsFormatError(err))
			assert.Contains(t, err.Error(), "in.txt:")
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t2.txt")
	require.NoError(t, os.WriteFile(path, []byte("1\n5 2\n"), 0o644))

	tbl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, tbl.Name)
	assert.Equal(t, []Row{{Key: 5, Value: 2}}, tbl.Rows)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.False(t, IsFormatError(err))
}

func TestLoadFormatErrorKeepsType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte("1\n1 x\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
}
