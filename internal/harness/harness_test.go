package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querycalc/internal/table"
)

func TestScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Equal(t, "test-run-default", result.RunID)
		})
	}
}

func TestRunReportsMismatch(t *testing.T) {
	s := &Scenario{
		Name:        "wrong",
		Description: "expects the wrong sum",
		T1:          &TableSpec{Rows: [][]float64{{1, 10}}},
		T2:          &TableSpec{Rows: [][]float64{{5, 2}}},
		T3:          &TableSpec{Rows: [][]float64{{5, 3}}},
		Expect:      [][]float64{{1, 61}},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "s = 60, want 61")
}

func TestRunReportsUnexpectedSuccess(t *testing.T) {
	s := &Scenario{
		Name:        "no_error",
		Description: "expects an error that never happens",
		T1:          &TableSpec{Rows: [][]float64{{1, 1}}},
		T2:          &TableSpec{Rows: [][]float64{}},
		T3:          &TableSpec{Rows: [][]float64{}},
		ExpectError: "FORMAT_FAILURE",
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "query succeeded")
}

func TestRunForcedStrategies(t *testing.T) {
	for _, strategy := range []string{"t2t3", "probe_t3", "probe_t2"} {
		t.Run(strategy, func(t *testing.T) {
			s := &Scenario{
				Name:        "strategy_" + strategy,
				Description: "same result for every strategy",
				T1:          &TableSpec{Rows: [][]float64{{1, 1}, {1, 2}, {2, 1}}},
				T2:          &TableSpec{Rows: [][]float64{{0, 1}, {1, 2}, {2, 3}}},
				T3:          &TableSpec{Rows: [][]float64{{0, 1}, {1, 1}, {2, 1}, {3, 1}}},
				Strategy:    strategy,
				Oracle:      true,
				Expect:      [][]float64{{1, 60}, {2, 14}},
			}
			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Equal(t, strategy, result.Strategy)
		})
	}
}

func TestLoadScenarioErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"unknown field", "name: x\ndescription: d\nt1: []\nt2: []\nt3: []\nexpect: []\ntypo: 1\n", "field typo not found"},
		{"missing name", "description: d\nt1: []\nt2: []\nt3: []\nexpect: []\n", "name is required"},
		{"missing table", "name: x\ndescription: d\nt1: []\nt2: []\nexpect: []\n", "t3 is required"},
		{"no expectation", "name: x\ndescription: d\nt1: []\nt2: []\nt3: []\n", "exactly one of expect or expect_error"},
		{"both expectations", "name: x\ndescription: d\nt1: []\nt2: []\nt3: []\nexpect: []\nexpect_error: IO_FAILURE\n", "exactly one of expect or expect_error"},
		{"bad row width", "name: x\ndescription: d\nt1: [[1, 2, 3]]\nt2: []\nt3: []\nexpect: []\n", "t1.rows[0]"},
		{"two sources", "name: x\ndescription: d\nt1:\n  rows: []\n  text: \"0\\n\"\nt2: []\nt3: []\nexpect: []\n", "exactly one of rows, text or file"},
		{"unknown code", "name: x\ndescription: d\nt1: []\nt2: []\nt3: []\nexpect_error: BOOM\n", "unknown error code"},
		{"unknown strategy", "name: x\ndescription: d\nt1: []\nt2: []\nt3: []\nexpect: []\nstrategy: hash\n", "strategy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestTableSpecForms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	content := "name: x\ndescription: d\nt1: [[1, 2]]\nt2:\n  rows: [[3, 4]]\nt3:\n  file: t3.txt\nexpect: []\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}}, s.T1.Rows)
	assert.Equal(t, [][]float64{{3, 4}}, s.T2.Rows)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "t3.txt"), s.T3.File)
	assert.NotNil(t, s.Expect)
	assert.Empty(t, s.Expect)
}

func TestCompareRows(t *testing.T) {
	want := []table.ResultRow{{A: 1, S: 1}, {A: 2, S: 1e12}}

	assert.Empty(t, CompareRows(want, []table.ResultRow{{A: 1, S: 1 + 1e-12}, {A: 2, S: 1e12 + 1}}, Tolerance))
	assert.Len(t, CompareRows(want, []table.ResultRow{{A: 1, S: 1}}, Tolerance), 1)
	assert.Equal(t, []string{"row 2: a = 3, want 2"},
		CompareRows(want, []table.ResultRow{{A: 1, S: 1}, {A: 3, S: 1e12}}, Tolerance))
}
