package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/querycalc/internal/engine"
	"github.com/roach88/querycalc/internal/harness"
	"github.com/roach88/querycalc/internal/store"
)

// DefaultMaxCells bounds |T1|·|T2|·|T3| for verification; SQLite evaluates
// the join row by row.
const DefaultMaxCells = 100_000_000

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	engineFlags
	MaxCells int64
}

// VerifyResult is the outcome of comparing the engine with the SQLite oracle.
type VerifyResult struct {
	Match      bool        `json:"match"`
	Strategy   string      `json:"strategy"`
	Rows       []RowOutput `json:"rows"`
	Mismatches []string    `json:"mismatches,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <t1> <t2> <t3>",
		Short: "Cross-check the engine against SQLite",
		Long: `Run the query with the engine and with an in-memory SQLite database
executing the literal SQL, then compare the two results row by row.
Aggregates are compared with a relative tolerance of 1e-9.

SQLite evaluates the full three-way join, so inputs are refused when
|T1|·|T2|·|T3| exceeds --max-cells.

Exit codes:
  0 - Results match
  1 - Results differ
  2 - Command error (bad input, inputs too large, NaN values)`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args, cmd)
		},
	}

	opts.engineFlags.register(cmd)
	cmd.Flags().Int64Var(&opts.MaxCells, "max-cells", DefaultMaxCells, "refuse inputs whose triple product exceeds this")

	return cmd
}

func runVerify(opts *VerifyOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	fail := func(code, msg string, err error) error {
		_ = formatter.Error(code, fmt.Sprintf("%s: %v", msg, err), nil)
		return WrapExitError(ExitCommandError, msg, err)
	}

	cfg, err := resolveConfig(cmd, opts.RootOptions, &opts.engineFlags)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	setupLogging(cmd.ErrOrStderr(), cfg.LogFormat, opts.Verbose)

	engineOpts, err := cfg.EngineOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid settings", err)
	}
	eng := engine.New(engineOpts...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	tables, err := eng.Load(ctx, args[0], args[1], args[2])
	if err != nil {
		return fail(errorCode(err), "failed to load tables", err)
	}

	cells := float64(tables.T1.Len()) * float64(tables.T2.Len()) * float64(tables.T3.Len())
	if cells > float64(opts.MaxCells) {
		return fail(ErrCodeGeneric, "inputs too large to verify",
			fmt.Errorf("%.0f join cells > --max-cells %d", cells, opts.MaxCells))
	}

	res, err := eng.Evaluate(ctx, tables)
	if err != nil {
		return fail(errorCode(err), "query failed", err)
	}
	formatter.VerboseLog("engine: %d row(s) with strategy %s", len(res.Rows), res.Plan.Strategy())

	db, err := store.Open(store.MemoryPath)
	if err != nil {
		return fail(ErrCodeGeneric, "failed to open oracle", err)
	}
	defer db.Close()

	if err := db.LoadTables(ctx, tables.T1.Rows, tables.T2.Rows, tables.T3.Rows); err != nil {
		if errors.Is(err, store.ErrNaN) {
			return fail(ErrCodeGeneric, "inputs cannot be verified", err)
		}
		return fail(ErrCodeGeneric, "failed to load oracle", err)
	}
	want, err := db.Select(ctx, engine.DefaultLimit)
	if err != nil {
		return fail(ErrCodeGeneric, "oracle query failed", err)
	}

	result := VerifyResult{
		Strategy:   string(res.Plan.Strategy()),
		Rows:       rowOutputs(res.Rows),
		Mismatches: harness.CompareRows(want, res.Rows, harness.Tolerance),
	}
	result.Match = len(result.Mismatches) == 0

	if formatter.Format == "json" {
		if result.Match {
			return formatter.Success(result)
		}
		_ = formatter.Error(ErrCodeMismatch, "engine and SQLite disagree", result)
		return NewExitError(ExitFailure, fmt.Sprintf("verification failed with %d mismatch(es)", len(result.Mismatches)))
	}

	if result.Match {
		formatter.Printf("✓ engine matches SQLite (%d rows, strategy %s)\n", len(result.Rows), result.Strategy)
		return nil
	}
	formatter.Printf("✗ engine and SQLite disagree\n\n")
	for _, m := range result.Mismatches {
		formatter.Printf("  %s\n", m)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("verification failed with %d mismatch(es)", len(result.Mismatches)))
}
