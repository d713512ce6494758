package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/querycalc/internal/engine"
)

// Scenario defines one query run and its expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	T1 *TableSpec `yaml:"t1"`
	T2 *TableSpec `yaml:"t2"`
	T3 *TableSpec `yaml:"t3"`

	// Strategy forces an evaluation strategy; empty means auto.
	Strategy string `yaml:"strategy,omitempty"`

	// Workers sets engine parallelism; 0 means GOMAXPROCS.
	Workers int `yaml:"workers,omitempty"`

	// MemoryBudget limits the pair size ("64KiB"); empty means unlimited.
	MemoryBudget string `yaml:"memory_budget,omitempty"`

	// Oracle cross-checks the result against SQLite.
	Oracle bool `yaml:"oracle,omitempty"`

	// Expect lists the expected (a, s) rows in order. An empty list expects
	// an empty result.
	Expect [][]float64 `yaml:"expect,omitempty"`

	// ExpectError is the expected engine error code, e.g. FORMAT_FAILURE.
	ExpectError string `yaml:"expect_error,omitempty"`

	// RunID is an optional fixed run ID.
	RunID string `yaml:"run_id,omitempty"`
}

// TableSpec supplies one input table, either as inline rows, as raw file
// text, or as a path to a table file. A YAML sequence is shorthand for rows.
type TableSpec struct {
	Rows [][]float64 `yaml:"rows,omitempty"`
	Text string      `yaml:"text,omitempty"`
	File string      `yaml:"file,omitempty"`
}

// UnmarshalYAML accepts both the sequence shorthand and the mapping form.
func (t *TableSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		rows := [][]float64{}
		if err := node.Decode(&rows); err != nil {
			return err
		}
		t.Rows = rows
		return nil
	}

	type plain TableSpec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = TableSpec(p)
	return nil
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// Table file paths are resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for _, spec := range []*TableSpec{scenario.T1, scenario.T2, scenario.T3} {
		if spec != nil && spec.File != "" && !filepath.IsAbs(spec.File) {
			spec.File = filepath.Join(base, spec.File)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

var errorCodes = map[string]bool{
	string(engine.ErrCodeFormatFailure):      true,
	string(engine.ErrCodeIOFailure):          true,
	string(engine.ErrCodeResourceExhaustion): true,
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	for _, t := range []struct {
		name string
		spec *TableSpec
	}{{"t1", s.T1}, {"t2", s.T2}, {"t3", s.T3}} {
		if err := validateTable(t.name, t.spec); err != nil {
			return err
		}
	}

	if (s.Expect == nil) == (s.ExpectError == "") {
		return fmt.Errorf("exactly one of expect or expect_error is required")
	}
	for i, row := range s.Expect {
		if len(row) != 2 {
			return fmt.Errorf("expect[%d]: want [a, s], got %d values", i, len(row))
		}
	}
	if len(s.Expect) > engine.DefaultLimit {
		return fmt.Errorf("expect: at most %d rows", engine.DefaultLimit)
	}
	if s.ExpectError != "" && !errorCodes[s.ExpectError] {
		return fmt.Errorf("expect_error: unknown error code %q", s.ExpectError)
	}

	if _, err := engine.ParseStrategy(s.Strategy); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}

	return nil
}

func validateTable(name string, t *TableSpec) error {
	if t == nil {
		return fmt.Errorf("%s is required", name)
	}

	sources := 0
	if t.Rows != nil {
		sources++
	}
	if t.Text != "" {
		sources++
	}
	if t.File != "" {
		sources++
	}
	if sources != 1 {
		return fmt.Errorf("%s: exactly one of rows, text or file is required", name)
	}

	for i, row := range t.Rows {
		if len(row) != 2 {
			return fmt.Errorf("%s.rows[%d]: want [key, value], got %d values", name, i, len(row))
		}
	}
	// A missing file is not rejected here; expect_error: IO_FAILURE tests it.
	return nil
}
