package table

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ResultRow is one output line: a group key and its aggregate.
type ResultRow struct {
	A float64 `json:"a"`
	S float64 `json:"s"`
}

// EncodeResult renders rows in the table file format: the row count, then one
// "<a> <s>" line per row, each terminated by '\n'. Numbers use the shortest
// representation that round-trips through ParseFloat.
func EncodeResult(rows []ResultRow) []byte {
	buf := make([]byte, 0, 8+len(rows)*48)
	buf = strconv.AppendInt(buf, int64(len(rows)), 10)
	buf = append(buf, '\n')
	for _, r := range rows {
		buf = AppendNumber(buf, r.A)
		buf = append(buf, ' ')
		buf = AppendNumber(buf, r.S)
		buf = append(buf, '\n')
	}
	return buf
}

// AppendNumber appends the text form of v used in result files.
func AppendNumber(dst []byte, v float64) []byte {
	return strconv.AppendFloat(dst, v, 'g', -1, 64)
}

// ResultRows converts a decoded result file back into result rows.
func ResultRows(t *Table) []ResultRow {
	out := make([]ResultRow, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = ResultRow{A: r.Key, S: r.Value}
	}
	return out
}

// WriteFile writes data to path atomically: the bytes go to a temporary file
// in the same directory, which is synced and renamed over path. On failure
// the temporary file is removed and path is left untouched.
func WriteFile(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod output: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
