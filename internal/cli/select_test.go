package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querycalc/internal/table"
	"github.com/roach88/querycalc/internal/testutil"
)

// concreteTables writes the two-group example tables and returns their
// paths and the directory holding them.
func concreteTables(t *testing.T) (dir string, paths []string) {
	t.Helper()
	dir = t.TempDir()
	paths = []string{
		testutil.WriteTable(t, dir, "t1.txt", []table.Row{{Key: 1, Value: 10}, {Key: 2, Value: 20}}),
		testutil.WriteTable(t, dir, "t2.txt", []table.Row{{Key: 5, Value: 2}}),
		testutil.WriteTable(t, dir, "t3.txt", []table.Row{{Key: 5, Value: 3}}),
	}
	return dir, paths
}

type selectResponse struct {
	Status string        `json:"status"`
	Data   SelectSummary `json:"data"`
	Error  *CLIError     `json:"error"`
}

func executeSelect(t *testing.T, rootOpts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewSelectCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestSelectCommandMissingArgs(t *testing.T) {
	_, err := executeSelect(t, &RootOptions{Format: "text"}, "t1.txt", "t2.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 4 arg")
}

func TestSelectCommandWritesResult(t *testing.T) {
	dir, paths := concreteTables(t)
	out := filepath.Join(dir, "out.txt")

	stdout, err := executeSelect(t, &RootOptions{Format: "text"},
		paths[0], paths[1], paths[2], out, "--workers", "2", "--memory-budget", "1GiB")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "2\n2 120\n1 60\n", string(data))

	assert.Contains(t, stdout, "✓ wrote 2 row(s) to "+out)
	assert.Contains(t, stdout, "strategy: t2t3, groups: 2")
	assert.Contains(t, stdout, "digest:")
}

func TestSelectCommandJSON(t *testing.T) {
	dir, paths := concreteTables(t)
	out := filepath.Join(dir, "out.txt")

	stdout, err := executeSelect(t, &RootOptions{Format: "json"},
		paths[0], paths[1], paths[2], out, "--memory-budget", "1GiB")
	require.NoError(t, err)

	var resp selectResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "t2t3", resp.Data.Strategy)
	assert.Equal(t, 2, resp.Data.Groups)
	assert.Equal(t, []RowOutput{{A: "2", S: "120"}, {A: "1", S: "60"}}, resp.Data.Rows)
	assert.Len(t, resp.Data.Digest, 16)
	assert.NotEmpty(t, resp.Data.RunID)
}

func TestSelectCommandFixedRunID(t *testing.T) {
	dir, paths := concreteTables(t)

	opts := &SelectOptions{RootOptions: &RootOptions{Format: "json"}, RunIDs: testutil.NewFixedRunID("run-cli")}
	buf := &bytes.Buffer{}
	cmd := NewSelectCommand(opts.RootOptions)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})

	require.NoError(t, runSelect(opts, append(paths, filepath.Join(dir, "out.txt")), cmd))

	var resp selectResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "run-cli", resp.Data.RunID)
}

func TestSelectCommandFormatFailure(t *testing.T) {
	dir, paths := concreteTables(t)
	paths[0] = testutil.WriteFile(t, dir, "bad.txt", "1\n1 abc\n")
	out := filepath.Join(dir, "out.txt")

	stdout, err := executeSelect(t, &RootOptions{Format: "text"}, paths[0], paths[1], paths[2], out)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [FORMAT_FAILURE]")

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no output on failure")
}

func TestSelectCommandResourceExhaustionJSON(t *testing.T) {
	dir, paths := concreteTables(t)

	stdout, err := executeSelect(t, &RootOptions{Format: "json"},
		paths[0], paths[1], paths[2], filepath.Join(dir, "out.txt"), "--memory-budget", "1B")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RESOURCE_EXHAUSTION", resp.Error.Code)
}

func TestSelectCommandCanceledJSON(t *testing.T) {
	dir, paths := concreteTables(t)
	out := filepath.Join(dir, "out.txt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buf := &bytes.Buffer{}
	cmd := NewSelectCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(paths, out))
	err := cmd.ExecuteContext(ctx)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CANCELED", resp.Error.Code)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no output on cancellation")
}

func TestSelectCommandInvalidFlag(t *testing.T) {
	dir, paths := concreteTables(t)

	_, err := executeSelect(t, &RootOptions{Format: "text"},
		paths[0], paths[1], paths[2], filepath.Join(dir, "out.txt"), "--workers", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "workers")
}

func TestSelectCommandConfigPrecedence(t *testing.T) {
	dir, paths := concreteTables(t)
	cfgPath := testutil.WriteFile(t, dir, "querycalc.yaml", "strategy: probe_t3\nmemory_budget: 1GiB\n")
	out := filepath.Join(dir, "out.txt")

	tests := []struct {
		name  string
		flags []string
		want  string
	}{
		{"config only", nil, "probe_t3"},
		{"flag wins", []string{"--strategy", "probe_t2"}, "probe_t2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{paths[0], paths[1], paths[2], out}, tt.flags...)
			stdout, err := executeSelect(t, &RootOptions{Format: "json", Config: cfgPath}, args...)
			require.NoError(t, err)

			var resp selectResponse
			require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
			assert.Equal(t, tt.want, resp.Data.Strategy)
			assert.Equal(t, []RowOutput{{A: "2", S: "120"}, {A: "1", S: "60"}}, resp.Data.Rows)
		})
	}
}

func TestSelectCommandInvalidConfig(t *testing.T) {
	dir, paths := concreteTables(t)
	cfgPath := testutil.WriteFile(t, dir, "bad.yaml", "strategy: hash\n")

	_, err := executeSelect(t, &RootOptions{Format: "text", Config: cfgPath},
		paths[0], paths[1], paths[2], filepath.Join(dir, "out.txt"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestSelectCommandMetricsFile(t *testing.T) {
	dir, paths := concreteTables(t)
	metricsPath := filepath.Join(dir, "querycalc.prom")

	_, err := executeSelect(t, &RootOptions{Format: "text"},
		paths[0], paths[1], paths[2], filepath.Join(dir, "out.txt"),
		"--memory-budget", "1GiB", "--metrics-file", metricsPath)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `querycalc_rows_total{table="t1"} 2`)
	assert.Contains(t, text, `querycalc_strategy_info{strategy="t2t3"} 1`)
	assert.Contains(t, text, "querycalc_stage_duration_seconds")
}
