package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/roach88/querycalc/internal/engine"
	"github.com/roach88/querycalc/internal/store"
	"github.com/roach88/querycalc/internal/table"
)

// Tolerance is the relative tolerance for comparing aggregates.
const Tolerance = 1e-9

// Result is the outcome of one scenario run.
type Result struct {
	Name     string            `json:"name"`
	Pass     bool              `json:"pass"`
	Errors   []string          `json:"errors,omitempty"`
	RunID    string            `json:"run_id"`
	Strategy string            `json:"strategy,omitempty"`
	Code     string            `json:"error_code,omitempty"`
	Rows     []table.ResultRow `json:"rows"`
	Digest   string            `json:"digest,omitempty"`

	// Output is the exact content of the result file.
	Output []byte `json:"-"`
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Run executes a scenario and checks its expectations.
//
// Each scenario runs in a fresh scratch directory that is removed
// afterwards. The returned error covers harness failures only (scratch
// files, oracle setup); a scenario that does not meet its expectations
// yields a Result with Pass false.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "querycalc-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	var paths [3]string
	for i, spec := range []*TableSpec{s.T1, s.T2, s.T3} {
		paths[i], err = materializeTable(dir, fmt.Sprintf("t%d.txt", i+1), spec)
		if err != nil {
			return nil, err
		}
	}
	outPath := filepath.Join(dir, "out.txt")

	opts, err := scenarioOptions(s)
	if err != nil {
		return nil, err
	}
	eng := engine.New(opts...)

	result := &Result{Name: s.Name, Pass: true, RunID: runID(s), Rows: []table.ResultRow{}}
	res, runErr := eng.Select(ctx, paths[0], paths[1], paths[2], outPath)

	if s.ExpectError != "" {
		checkError(result, s.ExpectError, runErr)
		if _, err := os.Stat(outPath); err == nil {
			result.AddError("output file written despite failure")
		}
		return result, nil
	}
	if runErr != nil {
		result.Code = string(engine.CodeOf(runErr))
		result.AddError("query failed: %v", runErr)
		return result, nil
	}

	result.Strategy = string(res.Plan.Strategy())
	result.Rows = res.Rows
	result.Digest = fmt.Sprintf("%016x", res.Digest)

	written, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read result file: %w", err)
	}
	result.Output = written
	if string(written) != string(res.Output) {
		result.AddError("result file differs from the encoded result")
	}

	for _, msg := range CompareRows(expectedRows(s.Expect), res.Rows, Tolerance) {
		result.AddError("expect: %s", msg)
	}

	if s.Oracle {
		oracleRows, err := runOracle(ctx, paths)
		if err != nil {
			return nil, err
		}
		for _, msg := range CompareRows(oracleRows, res.Rows, Tolerance) {
			result.AddError("oracle: %s", msg)
		}
	}

	slog.Debug("scenario finished", "name", s.Name, "pass", result.Pass, "run_id", result.RunID)
	return result, nil
}

// RunAll runs scenarios in order and returns one result per scenario.
func RunAll(ctx context.Context, scenarios []*Scenario) ([]*Result, error) {
	results := make([]*Result, 0, len(scenarios))
	for _, s := range scenarios {
		r, err := Run(ctx, s)
		if err != nil {
			return results, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		results = append(results, r)
	}
	return results, nil
}

func checkError(result *Result, want string, err error) {
	if err == nil {
		result.AddError("expected error %s, query succeeded", want)
		return
	}
	got := string(engine.CodeOf(err))
	result.Code = got
	if got != want {
		result.AddError("expected error %s, got %s (%v)", want, got, err)
	}
}

func runID(s *Scenario) string {
	if s.RunID != "" {
		return s.RunID
	}
	return "test-run-default"
}

func scenarioOptions(s *Scenario) ([]engine.EngineOption, error) {
	strategy, err := engine.ParseStrategy(s.Strategy)
	if err != nil {
		return nil, err
	}
	opts := []engine.EngineOption{
		engine.WithWorkers(s.Workers),
		engine.WithStrategy(strategy),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(runID(s))),
		engine.WithMemoryBudget(0),
	}
	if s.MemoryBudget != "" {
		n, err := humanize.ParseBytes(s.MemoryBudget)
		if err != nil {
			return nil, fmt.Errorf("memory_budget: %w", err)
		}
		opts = append(opts, engine.WithMemoryBudget(int64(n)))
	}
	return opts, nil
}

// materializeTable returns a path holding the table described by spec.
func materializeTable(dir, name string, spec *TableSpec) (string, error) {
	if spec.File != "" {
		return spec.File, nil
	}

	content := []byte(spec.Text)
	if spec.Rows != nil {
		rows := make([]table.ResultRow, len(spec.Rows))
		for i, r := range spec.Rows {
			rows[i] = table.ResultRow{A: r[0], S: r[1]}
		}
		// Input tables share the result file format.
		content = table.EncodeResult(rows)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

func expectedRows(expect [][]float64) []table.ResultRow {
	rows := make([]table.ResultRow, len(expect))
	for i, r := range expect {
		rows[i] = table.ResultRow{A: r[0], S: r[1]}
	}
	return rows
}

func runOracle(ctx context.Context, paths [3]string) ([]table.ResultRow, error) {
	var inputs [3][]table.Row
	for i, p := range paths {
		t, err := table.Load(p)
		if err != nil {
			return nil, fmt.Errorf("oracle: %w", err)
		}
		inputs[i] = t.Rows
	}

	db, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}
	defer db.Close()

	if err := db.LoadTables(ctx, inputs[0], inputs[1], inputs[2]); err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}
	return db.Select(ctx, engine.DefaultLimit)
}
