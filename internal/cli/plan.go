package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/querycalc/internal/engine"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	engineFlags
}

// PlanResult is the JSON payload of the plan command.
type PlanResult struct {
	Rows      [3]int            `json:"rows"`
	Groups    int               `json:"groups"`
	Budget    int64             `json:"budget"`
	Estimates []engine.Estimate `json:"estimates"`
	Chosen    engine.Strategy   `json:"chosen,omitempty"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <t1> <t2> <t3>",
		Short: "Show the evaluation plan without running the query",
		Long: `Load the three tables and show what the planner would do.

For every strategy the output lists the pair it walks, the number of
pair entries and their estimated size against the memory budget.

Examples:
  querycalc plan t1.txt t2.txt t3.txt
  querycalc plan t1.txt t2.txt t3.txt --memory-budget 512MiB --format json`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args, cmd)
		},
	}

	opts.engineFlags.register(cmd)

	return cmd
}

func runPlan(opts *PlanOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

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
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load tables", err)
	}

	plan, groups, planErr := eng.Explain(tables)
	result := PlanResult{
		Rows:   [3]int{tables.T1.Len(), tables.T2.Len(), tables.T3.Len()},
		Groups: groups,
		Budget: eng.Budget(),
	}
	if planErr != nil {
		var be *engine.BudgetExceededError
		if !errors.As(planErr, &be) {
			return WrapExitError(ExitCommandError, "planning failed", planErr)
		}
		result.Estimates = be.Estimates
	} else {
		result.Estimates = plan.Estimates
		result.Chosen = plan.Strategy()
	}

	if formatter.Format == "json" {
		if planErr != nil {
			_ = formatter.Error(errorCode(planErr), planErr.Error(), result)
		} else if err := formatter.Success(result); err != nil {
			return err
		}
	} else if err := writePlanText(formatter, result); err != nil {
		return err
	}

	if planErr != nil {
		return WrapExitError(ExitCommandError, "no strategy fits", planErr)
	}
	return nil
}

func writePlanText(f *OutputFormatter, r PlanResult) error {
	f.Printf("T1: %d rows, %d groups\n", r.Rows[0], r.Groups)
	f.Printf("T2: %d rows\n", r.Rows[1])
	f.Printf("T3: %d rows\n", r.Rows[2])
	f.Printf("budget: %s\n", budgetText(r.Budget))

	tw := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tPAIR\tENTRIES\tBYTES\tFITS")
	for _, est := range r.Estimates {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			est.Strategy, est.Pair, humanize.Comma(est.Entries), humanize.IBytes(uint64(est.Bytes)), yesNo(est.Fits))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if r.Chosen == "" {
		_, err := io.WriteString(f.Writer, "chosen: none (no strategy fits the budget)\n")
		return err
	}
	f.Printf("chosen: %s\n", r.Chosen)
	return nil
}

func budgetText(budget int64) string {
	if budget <= 0 {
		return "unlimited"
	}
	return humanize.IBytes(uint64(budget))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
