package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/querycalc/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	Config    string // optional YAML run configuration
	LogFormat string // overrides log_format from the config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the querycalc CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "querycalc",
		Short: "querycalc - a fixed inequality-join query over flat files",
		Long: `Evaluate

  SELECT a, SUM(x*y*z) FROM t1 LEFT JOIN (t2 JOIN t3) ON a < b + c
  GROUP BY a STABLE ORDER BY s DESC LIMIT 10

over three two-column table files and write the result as a table file.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.LogFormat != "" && !isValidFormat(opts.LogFormat) {
				return fmt.Errorf("invalid log format %q: must be one of %v", opts.LogFormat, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to a YAML run configuration")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (json|text), overrides the config")

	cmd.AddCommand(NewSelectCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// engineFlags are the engine settings every query command accepts. A flag
// that was set on the command line wins over the config file.
type engineFlags struct {
	Workers      int
	MemoryBudget string
	Strategy     string
}

func (f *engineFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.Workers, "workers", 0, "worker goroutines (0 = GOMAXPROCS)")
	cmd.Flags().StringVar(&f.MemoryBudget, "memory-budget", "", `bytes the materialized pair may use, e.g. "4GiB" (default: detect)`)
	cmd.Flags().StringVar(&f.Strategy, "strategy", "", "evaluation strategy (auto|t2t3|probe_t3|probe_t2)")
}

func (f *engineFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("workers") {
		cfg.Workers = f.Workers
	}
	if cmd.Flags().Changed("memory-budget") {
		cfg.MemoryBudget = f.MemoryBudget
	}
	if cmd.Flags().Changed("strategy") {
		cfg.Strategy = f.Strategy
	}
}

// resolveConfig loads the config file (or the defaults), applies command-line
// overrides and validates the result.
func resolveConfig(cmd *cobra.Command, opts *RootOptions, flags *engineFlags) (config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}

	if flags != nil {
		flags.apply(cmd, &cfg)
	}
	if opts.LogFormat != "" {
		cfg.LogFormat = opts.LogFormat
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid settings",
			&config.InvalidError{Path: "(command line)", Errors: errs})
	}
	return cfg, nil
}

// setupLogging installs the default slog logger: text or JSON on w, Debug
// level when verbose.
func setupLogging(w io.Writer, format string, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}
