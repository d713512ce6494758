package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/querycalc/internal/metrics"
	"github.com/roach88/querycalc/internal/table"
)

// Engine evaluates
//
//	SELECT a, SUM(x*y*z) AS s FROM t1 LEFT JOIN (t2 JOIN t3) ON a < b + c
//	GROUP BY a STABLE ORDER BY s DESC LIMIT 10
//
// over three loaded tables. An Engine holds configuration only and may run
// any number of queries, concurrently or not.
//
// Pipeline: load T1, T2, T3 concurrently → plan → group T1 ∥ build the pair
// → aggregate every group → top-K → encode. Every stage is deterministic, so
// identical inputs give byte-identical output for any worker count.
type Engine struct {
	workers  int
	budget   int64 // bytes for the pair; <= 0 disables the check
	strategy Strategy
	limit    int
	runIDs   RunIDGenerator
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithWorkers sets the number of goroutines used by the join and the
// aggregation. n <= 0 means GOMAXPROCS.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n <= 0 {
			n = runtime.GOMAXPROCS(0)
		}
		e.workers = n
	}
}

// WithMemoryBudget sets the bytes the materialized pair may occupy.
// A budget <= 0 disables the check.
func WithMemoryBudget(bytes int64) EngineOption {
	return func(e *Engine) {
		e.budget = bytes
	}
}

// WithStrategy forces an evaluation strategy. StrategyAuto lets the planner choose.
func WithStrategy(s Strategy) EngineOption {
	return func(e *Engine) {
		e.strategy = s
	}
}

// WithLimit sets how many groups the result keeps.
func WithLimit(k int) EngineOption {
	return func(e *Engine) {
		e.limit = k
	}
}

// WithRunIDGenerator replaces the UUIDv7 run ID generator (tests use FixedGenerator).
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// New creates an Engine. Without options it uses every CPU, the detected
// memory budget and the auto strategy.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		workers:  runtime.GOMAXPROCS(0),
		budget:   -1,
		strategy: StrategyAuto,
		limit:    DefaultLimit,
		runIDs:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.budget == -1 {
		e.budget = DetectBudget()
	}
	return e
}

// Budget returns the memory budget in bytes.
func (e *Engine) Budget() int64 {
	return e.budget
}

// Workers returns the configured parallelism.
func (e *Engine) Workers() int {
	return e.workers
}

// Tables are the three query inputs.
type Tables struct {
	T1, T2, T3 *table.Table
}

// sizes returns planner input with the T1 row count standing in for the
// number of groups.
func (t *Tables) sizes() Sizes {
	return Sizes{T1Rows: t.T1.Len(), Groups: t.T1.Len(), T2Rows: t.T2.Len(), T3Rows: t.T3.Len()}
}

// Result is the outcome of one query run.
type Result struct {
	RunID  string
	Plan   *Plan
	Groups int               // distinct T1 keys
	Rows   []table.ResultRow // at most limit rows in rank order
	Output []byte            // encoded result file
	Digest uint64            // xxh3 of Output
}

// Load reads the three tables concurrently. When several inputs fail, the
// error of the first one in T1, T2, T3 order is returned as a QueryError.
func (e *Engine) Load(ctx context.Context, t1Path, t2Path, t3Path string) (*Tables, error) {
	paths := [3]string{t1Path, t2Path, t3Path}
	var (
		loaded [3]*table.Table
		errs   [3]error
	)
	start := time.Now()

	// A plain group: one failing input must not cancel the others, or the
	// reported error would depend on scheduling.
	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = stageError("load", err)
				return errs[i]
			}
			t, err := table.Load(path)
			if err != nil {
				errs[i] = loadError(path, err)
				return errs[i]
			}
			loaded[i] = t
			return nil
		})
	}
	_ = g.Wait()

	var err error
	for _, loadErr := range errs {
		if loadErr != nil {
			err = loadErr
			break
		}
	}
	metrics.RecordStage("load", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	for i, t := range loaded {
		metrics.RecordRows(fmt.Sprintf("t%d", i+1), t.Len())
		if t.CountMismatch() {
			slog.Warn("row count differs from header", "table", t.Name, "declared", t.Declared, "rows", t.Len())
		}
	}
	return &Tables{T1: loaded[0], T2: loaded[1], T3: loaded[2]}, nil
}

// Select runs the query over three table files and writes the result to
// outPath. On failure nothing is written and the error is a QueryError;
// a canceled ctx yields ErrCodeCanceled.
func (e *Engine) Select(ctx context.Context, t1Path, t2Path, t3Path, outPath string) (*Result, error) {
	runID := e.runIDs.Generate()
	log := slog.With("run_id", runID)
	start := time.Now()

	tables, err := e.Load(ctx, t1Path, t2Path, t3Path)
	if err != nil {
		log.Error("query failed", "stage", "load", "error", err)
		return nil, err
	}
	log.Info("tables loaded", "t1", tables.T1.Len(), "t2", tables.T2.Len(), "t3", tables.T3.Len())

	res, err := e.evaluate(ctx, log, runID, tables)
	if err != nil {
		log.Error("query failed", "error", err)
		return nil, err
	}

	err = timeStage("write", func() error {
		return table.WriteFile(outPath, res.Output)
	})
	if err != nil {
		err = &QueryError{Code: ErrCodeIOFailure, Op: "write", Path: outPath, Err: err}
		log.Error("query failed", "stage", "write", "error", err)
		return nil, err
	}

	log.Info("query complete",
		"rows", len(res.Rows),
		"strategy", res.Plan.Strategy(),
		"digest", fmt.Sprintf("%016x", res.Digest),
		"elapsed", time.Since(start))
	return res, nil
}

// Evaluate runs the query over tables that are already in memory.
func (e *Engine) Evaluate(ctx context.Context, tables *Tables) (*Result, error) {
	runID := e.runIDs.Generate()
	return e.evaluate(ctx, slog.With("run_id", runID), runID, tables)
}

// Explain plans the query without evaluating it. T1 is grouped so the probe
// estimates use the exact number of groups.
func (e *Engine) Explain(tables *Tables) (*Plan, int, error) {
	sizes := tables.sizes()
	sizes.Groups = len(BuildGroups(tables.T1.Rows))
	plan, err := PlanQuery(sizes, e.budget, e.strategy)
	return plan, sizes.Groups, err
}

func (e *Engine) evaluate(ctx context.Context, log *slog.Logger, runID string, tables *Tables) (*Result, error) {
	var (
		groups []Group
		join   *SortedJoin
	)

	// With the row count as an upper bound on groups, a plan that fits now
	// still fits after grouping, so T1 can be grouped while the pair is built.
	plan, err := PlanQuery(tables.sizes(), e.budget, e.strategy)
	if err == nil && plan.Materializes() && tables.T1.Len() > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return timeStage("group", func() error {
				groups = BuildGroups(tables.T1.Rows)
				return nil
			})
		})
		g.Go(func() error {
			return timeStage("join", func() (err error) {
				join, err = Materialize(gctx, tables.T2.Rows, tables.T3.Rows, e.workers)
				return err
			})
		})
		if err := g.Wait(); err != nil {
			return nil, stageError("join", err)
		}
	} else {
		_ = timeStage("group", func() error {
			groups = BuildGroups(tables.T1.Rows)
			return nil
		})
		sizes := tables.sizes()
		sizes.Groups = len(groups)
		plan, err = PlanQuery(sizes, e.budget, e.strategy)
		if err != nil {
			if be := budgetOf(err); be != nil {
				log.Error("no pair fits the memory budget", "budget", humanize.IBytes(uint64(be.Budget)))
			}
			return nil, err
		}
		if plan.Materializes() && len(groups) > 0 {
			err := timeStage("join", func() (err error) {
				join, err = Materialize(ctx, tables.T2.Rows, tables.T3.Rows, e.workers)
				return err
			})
			if err != nil {
				return nil, stageError("join", err)
			}
		}
	}

	metrics.RecordStrategy(string(plan.Strategy()))
	if join != nil {
		metrics.SetPairEntries(int64(join.Len()))
		log.Info("join materialized",
			"entries", join.Len(),
			"bytes", humanize.IBytes(uint64(join.Len())*PairEntryBytes),
			"workers", e.workers)
	} else {
		metrics.SetPairEntries(0)
	}
	log.Debug("plan chosen",
		"strategy", plan.Strategy(),
		"pair", plan.Chosen.Pair,
		"estimate", humanize.IBytes(uint64(plan.Chosen.Bytes)),
		"groups", len(groups))

	err = timeStage("aggregate", func() error {
		switch {
		case len(groups) == 0:
			return nil
		case join != nil:
			return AggregateJoin(ctx, groups, join, e.workers)
		case plan.Strategy() == StrategyProbeT3:
			return AggregateProbe(ctx, groups, tables.T2.Rows, tables.T3.Rows, e.workers)
		default:
			return AggregateProbe(ctx, groups, tables.T3.Rows, tables.T2.Rows, e.workers)
		}
	})
	if err != nil {
		return nil, stageError("aggregate", err)
	}

	var top []Group
	_ = timeStage("topk", func() error {
		top = TopK(groups, e.limit)
		return nil
	})

	rows := make([]table.ResultRow, len(top))
	for i, g := range top {
		rows[i] = table.ResultRow{A: g.A, S: g.S}
	}
	out := table.EncodeResult(rows)

	return &Result{
		RunID:  runID,
		Plan:   plan,
		Groups: len(groups),
		Rows:   rows,
		Output: out,
		Digest: xxh3.Hash(out),
	}, nil
}

func budgetOf(err error) *BudgetExceededError {
	var be *BudgetExceededError
	if errors.As(err, &be) {
		return be
	}
	return nil
}

// timeStage runs fn and records its duration under the given stage name.
func timeStage(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStage(stage, err, time.Since(start))
	return err
}
