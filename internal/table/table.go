// Package table reads and writes the two-column flat files the query runs over.
//
// Input tables and the query result share one format:
//
//	<row count>
//	<key> <value>
//	<key> <value>
//	...
//
// The first line declares a row count; every following line holds two decimal
// numbers parsable as float64 (scientific notation allowed). The declared count
// is a capacity hint only: the loader parses every data line that is present.
package table

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// MaxRows is the largest row count a single table is expected to hold.
// A declared count above it is not an error; it only stops preallocation.
const MaxRows = 1_000_000

// maxLineBytes bounds a single line. Two float64 tokens never come close.
const maxLineBytes = 1 << 20

// Row is one (key, value) pair. For T1 the columns are (a, x), for T2 (b, y)
// and for T3 (c, z).
type Row struct {
	Key   float64
	Value float64
}

// Table is an immutable, ordered sequence of rows loaded from one file.
type Table struct {
	// Name labels the table in logs and errors (usually the file path).
	Name string

	// Declared is the row count from the header line.
	Declared int

	// Rows holds the data lines in file order. Row i (0-based) is at
	// position i+1 in the 1-based numbering used for tie-breaking.
	Rows []Row
}

// Len returns the number of data rows actually present.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// CountMismatch reports whether the header disagrees with the data lines.
func (t *Table) CountMismatch() bool {
	return t.Declared != len(t.Rows)
}

// Load opens path and decodes it as a table.
// Open and read failures are returned wrapped (*fs.PathError underneath);
// malformed lines are returned as *FormatError.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	adviseSequential(f)

	t, err := Decode(f, path)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}
	return t, nil
}

// Decode reads a table from r. The name is used only for error messages.
// An empty stream decodes to an empty table.
func Decode(r io.Reader, name string) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	t := &Table{Name: name}
	if !sc.Scan() {
		return t, sc.Err()
	}

	declared, err := parseHeader(sc.Bytes())
	if err != nil {
		return nil, &FormatError{Path: name, Line: 1, Text: string(sc.Bytes()), Reason: err.Error()}
	}
	t.Declared = declared
	t.Rows = make([]Row, 0, min(declared, MaxRows))

	line := 1
	for sc.Scan() {
		line++
		row, err := ParseRow(sc.Bytes())
		if err != nil {
			return nil, &FormatError{Path: name, Line: line, Text: string(sc.Bytes()), Reason: err.Error()}
		}
		t.Rows = append(t.Rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func parseHeader(b []byte) (int, error) {
	s := string(bytes.TrimSpace(b))
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("row count %q is not an integer", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("row count %d is negative", n)
	}
	return n, nil
}

// ParseRow decodes one data line. Tokens are separated by runs of spaces or
// tabs; tokens after the second are ignored. A value that overflows float64
// parses to the matching infinity, like strconv does with ErrRange.
func ParseRow(b []byte) (Row, error) {
	first, rest := nextToken(b)
	second, _ := nextToken(rest)
	if first == nil || second == nil {
		return Row{}, errors.New("expected two numeric tokens")
	}

	key, err := parseNumber(first)
	if err != nil {
		return Row{}, err
	}
	value, err := parseNumber(second)
	if err != nil {
		return Row{}, err
	}
	return Row{Key: key, Value: value}, nil
}

func parseNumber(tok []byte) (float64, error) {
	v, err := strconv.ParseFloat(string(tok), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("invalid number %q", tok)
	}
	return v, nil
}

// nextToken returns the first whitespace-delimited token of b and the
// remainder after it. tok is nil when b holds only whitespace.
func nextToken(b []byte) (tok, rest []byte) {
	i := 0
	for i < len(b) && isSpace(b[i]) {
		i++
	}
	if i == len(b) {
		return nil, nil
	}
	j := i
	for j < len(b) && !isSpace(b[j]) {
		j++
	}
	return b[i:j], b[j:]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f'
}
