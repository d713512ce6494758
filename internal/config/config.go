// Package config loads and validates the run configuration of querycalc.
//
// A configuration file is optional YAML. Decoding is strict (unknown keys are
// errors) and the decoded document is checked against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/roach88/querycalc/internal/engine"
)

//go:embed schema.cue
var schemaSource string

// Config is the run configuration.
type Config struct {
	Workers      int    `yaml:"workers" json:"workers"`
	MemoryBudget string `yaml:"memory_budget" json:"memory_budget"`
	Strategy     string `yaml:"strategy" json:"strategy"`
	Limit        int    `yaml:"limit" json:"limit"`
	MetricsFile  string `yaml:"metrics_file" json:"metrics_file"`
	LogFormat    string `yaml:"log_format" json:"log_format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Strategy:  string(engine.StrategyAuto),
		Limit:     engine.DefaultLimit,
		LogFormat: "text",
	}
}

// ValidationError is one schema violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidError reports every violation found in a configuration.
type InvalidError struct {
	Path   string
	Errors []ValidationError
}

// Error implements the error interface.
func (e *InvalidError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("invalid config %s: %s", e.Path, strings.Join(msgs, "; "))
}

// Load reads a YAML configuration file on top of Default and validates it.
// An empty file yields the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if errs := Validate(cfg); len(errs) > 0 {
		return Config{}, &InvalidError{Path: path, Errors: errs}
	}
	return cfg, nil
}

// Decode parses YAML on top of Default without validating it.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against the CUE schema and returns every violation,
// at most one per field.
func Validate(cfg Config) []ValidationError {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []ValidationError{{Message: fmt.Sprintf("schema: %v", err)}}
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(cfg))
	var errs []ValidationError
	if err := v.Validate(cue.Concrete(true)); err != nil {
		errs = fromCUE(err)
	}

	if _, err := cfg.BudgetBytes(); err != nil && !hasField(errs, "memory_budget") {
		errs = append(errs, ValidationError{Field: "memory_budget", Message: err.Error()})
	}
	return errs
}

// fromCUE flattens CUE errors into one ValidationError per field path.
func fromCUE(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		field := strings.Join(e.Path(), ".")
		field = strings.TrimPrefix(strings.TrimPrefix(field, "#Config"), ".")
		if hasField(out, field) {
			continue
		}
		format, args := e.Msg()
		out = append(out, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	return out
}

func hasField(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

// BudgetBytes parses MemoryBudget ("4GiB", "512 MB", "1000000").
// It returns 0 when the budget is empty, meaning detect from the host.
func (c Config) BudgetBytes() (int64, error) {
	if c.MemoryBudget == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.MemoryBudget)
	if err != nil {
		return 0, fmt.Errorf("parse memory budget %q: %w", c.MemoryBudget, err)
	}
	if n == 0 || n > 1<<62 {
		return 0, fmt.Errorf("memory budget %q out of range", c.MemoryBudget)
	}
	return int64(n), nil
}

// EngineOptions translates the configuration into engine options.
func (c Config) EngineOptions() ([]engine.EngineOption, error) {
	strategy, err := engine.ParseStrategy(c.Strategy)
	if err != nil {
		return nil, err
	}
	opts := []engine.EngineOption{
		engine.WithWorkers(c.Workers),
		engine.WithStrategy(strategy),
	}
	if c.Limit > 0 {
		opts = append(opts, engine.WithLimit(c.Limit))
	}

	budget, err := c.BudgetBytes()
	if err != nil {
		return nil, err
	}
	if budget > 0 {
		opts = append(opts, engine.WithMemoryBudget(budget))
	}
	return opts, nil
}
