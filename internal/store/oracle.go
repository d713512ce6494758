package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"

	"github.com/roach88/querycalc/internal/table"
)

//go:embed query.sql
var querySQL string

// ErrNaN is returned when a table holds a NaN. SQLite stores NaN as NULL,
// so such inputs cannot be checked against the oracle.
var ErrNaN = errors.New("NaN values are not representable in SQLite")

// inserts maps a table name to its insert statement. Names never reach SQL
// text from outside this map.
var inserts = map[string]string{
	"t1": "INSERT INTO t1 (a, x) VALUES (?, ?)",
	"t2": "INSERT INTO t2 (b, y) VALUES (?, ?)",
	"t3": "INSERT INTO t3 (c, z) VALUES (?, ?)",
}

// LoadTable replaces the contents of table name ("t1", "t2" or "t3") with
// rows, in order, so rowid equals the 1-based row position.
func (s *Store) LoadTable(ctx context.Context, name string, rows []table.Row) error {
	insert, ok := inserts[name]
	if !ok {
		return fmt.Errorf("unknown table %q", name)
	}
	for i, r := range rows {
		if math.IsNaN(r.Key) || math.IsNaN(r.Value) {
			return fmt.Errorf("%s row %d: %w", name, i+1, ErrNaN)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load %s: %w", name, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	// DELETE without WHERE truncates and resets rowid numbering.
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+name); err != nil {
		return fmt.Errorf("clear %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", name, err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Key, r.Value); err != nil {
			return fmt.Errorf("insert %s row %d: %w", name, i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load %s: %w", name, err)
	}
	return nil
}

// LoadTables loads all three inputs.
func (s *Store) LoadTables(ctx context.Context, t1, t2, t3 []table.Row) error {
	for _, in := range []struct {
		name string
		rows []table.Row
	}{{"t1", t1}, {"t2", t2}, {"t3", t3}} {
		if err := s.LoadTable(ctx, in.name, in.rows); err != nil {
			return err
		}
	}
	return nil
}

// Select evaluates the literal SQL query over the loaded tables and returns
// at most limit rows.
//
// SQLite compares 0 and -0 as equal, so such keys share one group here.
func (s *Store) Select(ctx context.Context, limit int) ([]table.ResultRow, error) {
	rows, err := s.db.QueryContext(ctx, querySQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query oracle: %w", err)
	}
	defer rows.Close()

	var out []table.ResultRow
	for rows.Next() {
		var (
			r        table.ResultRow
			firstRow int64
		)
		if err := rows.Scan(&r.A, &r.S, &firstRow); err != nil {
			return nil, fmt.Errorf("scan oracle row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate oracle rows: %w", err)
	}
	return out, nil
}
