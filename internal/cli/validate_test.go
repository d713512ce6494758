package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querycalc/internal/testutil"
)

func executeValidate(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateCommandValid(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "querycalc.yaml", "workers: 4\nmemory_budget: 2GiB\nstrategy: auto\n")

	stdout, err := executeValidate(t, "text", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Config valid")
}

func TestValidateCommandValidJSON(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "querycalc.yaml", "strategy: probe_t2\n")

	stdout, err := executeValidate(t, "json", path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.True(t, resp.Data.Valid)
	require.NotNil(t, resp.Data.Config)
	assert.Equal(t, "probe_t2", resp.Data.Config.Strategy)
	assert.Equal(t, 10, resp.Data.Config.Limit)
}

func TestValidateCommandInvalid(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "bad.yaml", "workers: -1\nstrategy: hash\n")

	stdout, err := executeValidate(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ Validation failed")
	assert.Contains(t, stdout, "workers:")
	assert.Contains(t, stdout, "strategy:")
}

func TestValidateCommandInvalidJSON(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "bad.yaml", "log_format: xml\n")

	stdout, err := executeValidate(t, "json", path)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	fields := make([]string, 0, len(resp.Data.Errors))
	for _, e := range resp.Data.Errors {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "log_format")
}

func TestValidateCommandUnreadable(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantMsg string
	}{
		{"missing file", func(t *testing.T) string { return "/nonexistent/querycalc.yaml" }, "open config"},
		{"unknown key", func(t *testing.T) string {
			return testutil.WriteFile(t, t.TempDir(), "typo.yaml", "wrokers: 4\n")
		}, "field wrokers not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, err := executeValidate(t, "text", tt.path(t))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, stdout, tt.wantMsg)
		})
	}
}
