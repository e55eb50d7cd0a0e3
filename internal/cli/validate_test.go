package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeValidate(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateScenarioDir(t *testing.T) {
	out, err := executeValidate(t, &RootOptions{Format: "text"}, scenarioDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ basic")
	assert.Contains(t, out, "✓ reentrant_removal")
	assert.Contains(t, out, "6 valid, 0 invalid")
}

func TestValidateInvalidScenario(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: bad\ndescription: x\nsteps:\n  - trigger: { subject: s }\n"), 0o644))

	out, err := executeValidate(t, &RootOptions{Format: "text"}, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ "+bad)
	assert.Contains(t, out, "message is required")
	assert.Contains(t, out, "0 valid, 1 invalid")
}

func TestValidateJSON(t *testing.T) {
	out, err := executeValidate(t, &RootOptions{Format: "json"}, filepath.Join(scenarioDir, "basic.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Files, 1)
	assert.Equal(t, "basic", resp.Data.Files[0].Name)
}

func TestValidateMissingPath(t *testing.T) {
	out, err := executeValidate(t, &RootOptions{Format: "text"}, filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestValidateBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.cue")
	require.NoError(t, os.WriteFile(path, []byte(`log: level: "loud"`), 0o644))

	out, err := executeValidate(t, &RootOptions{Format: "text", Config: path}, scenarioDir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E004]: invalid config")
}

func TestValidateNoArgs(t *testing.T) {
	_, err := executeValidate(t, &RootOptions{Format: "text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}
