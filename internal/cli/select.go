package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/querycalc/internal/engine"
	"github.com/roach88/querycalc/internal/metrics"
	"github.com/roach88/querycalc/internal/metrics/textfile"
)

// SelectOptions holds flags for the select command.
type SelectOptions struct {
	*RootOptions
	engineFlags
	MetricsFile string

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, the engine uses UUIDv7.
	RunIDs engine.RunIDGenerator
}

// SelectSummary is the JSON payload of a successful select.
type SelectSummary struct {
	RunID    string      `json:"run_id"`
	Output   string      `json:"output"`
	Strategy string      `json:"strategy"`
	Groups   int         `json:"groups"`
	Rows     []RowOutput `json:"rows"`
	Digest   string      `json:"digest"`
}

// NewSelectCommand creates the select command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SelectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "select <t1> <t2> <t3> <output>",
		Short: "Run the query and write the result file",
		Long: `Run the query over three table files and write the result table.

Each table file starts with a row count line followed by one
"<key> <value>" line per row. The result file has the same format
with at most 10 "<a> <s>" rows. Nothing is written when the run fails.

Exit codes:
  0 - Result written
  2 - Format, I/O or resource failure, or invalid settings

Examples:
  querycalc select t1.txt t2.txt t3.txt out.txt
  querycalc select t1.txt t2.txt t3.txt out.txt --memory-budget 4GiB --workers 8
  querycalc select t1.txt t2.txt t3.txt out.txt --metrics-file /var/lib/node_exporter/querycalc.prom`,
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(opts, args, cmd)
		},
	}

	opts.engineFlags.register(cmd)
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus textfile metrics to this path")

	return cmd
}

func runSelect(opts *SelectOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := resolveConfig(cmd, opts.RootOptions, &opts.engineFlags)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	if cmd.Flags().Changed("metrics-file") {
		cfg.MetricsFile = opts.MetricsFile
	}
	setupLogging(cmd.ErrOrStderr(), cfg.LogFormat, opts.Verbose)

	engineOpts, err := cfg.EngineOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid settings", err)
	}
	if opts.RunIDs != nil {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	eng := engine.New(engineOpts...)

	if cfg.MetricsFile != "" {
		backend, err := textfile.NewBackend(cfg.MetricsFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to set up metrics", err)
		}
		metrics.SetBackend(backend)
		defer metrics.SetBackend(nil)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	t1, t2, t3, out := args[0], args[1], args[2], args[3]
	res, runErr := eng.Select(ctx, t1, t2, t3, out)

	// Metrics are written for failed runs too.
	if cfg.MetricsFile != "" {
		if err := metrics.Flush(); err != nil {
			slog.Warn("failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	if runErr != nil {
		_ = formatter.Error(errorCode(runErr), runErr.Error(), nil)
		return WrapExitError(ExitCommandError, "query failed", runErr)
	}

	summary := SelectSummary{
		RunID:    res.RunID,
		Output:   out,
		Strategy: string(res.Plan.Strategy()),
		Groups:   res.Groups,
		Rows:     rowOutputs(res.Rows),
		Digest:   fmt.Sprintf("%016x", res.Digest),
	}
	if formatter.Format == "json" {
		return formatter.Success(summary)
	}

	formatter.Printf("✓ wrote %d row(s) to %s\n", len(summary.Rows), summary.Output)
	formatter.Printf("  strategy: %s, groups: %d\n", summary.Strategy, summary.Groups)
	formatter.Printf("  digest:   %s\n", summary.Digest)
	formatter.VerboseLog("run %s", summary.RunID)
	return nil
}
