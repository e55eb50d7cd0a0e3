package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/depnotify/internal/harness"
	"github.com/roach88/depnotify/internal/store"
)

// sequentialRunIDs yields run-1, run-2, ...
type sequentialRunIDs struct{ n int }

func (g *sequentialRunIDs) Generate() string {
	g.n++
	return fmt.Sprintf("run-%d", g.n)
}

func newRunCmd(opts *RunOptions, args ...string) (*cobra.Command, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cmd := newRunCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	return cmd, buf
}

func TestRunScenarioDir(t *testing.T) {
	cmd, buf := newRunCmd(&RunOptions{RootOptions: &RootOptions{Format: "text"}}, scenarioDir)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ basic\n")
	assert.Contains(t, buf.String(), "6 passed, 0 failed, 6 total")
}

func TestRunFailingScenario(t *testing.T) {
	dir := t.TempDir()
	body := "name: wrong\ndescription: expects a delivery that never happens\n" +
		"dependents: [{name: d}]\n" +
		"steps:\n  - add: { subject: s, dependent: d }\n" +
		"assertions:\n  - type: delivery_count\n    dependent: d\n    count: 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(body), 0o644))

	cmd, buf := newRunCmd(&RunOptions{RootOptions: &RootOptions{Format: "text"}}, dir)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ wrong")
	assert.Contains(t, buf.String(), "Assertion failed: delivery_count")
	assert.Contains(t, buf.String(), "0 passed, 1 failed, 1 total")
}

func TestRunWithJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		RunIDs:      &sequentialRunIDs{},
	}
	cmd, buf := newRunCmd(opts, "--db", dbPath, filepath.Join(scenarioDir, "basic.yaml"), filepath.Join(scenarioDir, "deferred_reentry.yaml"))

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ basic (run run-1)")
	assert.Contains(t, buf.String(), "✓ deferred_reentry (run run-2)")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "basic", runs[0].Label)
	assert.Positive(t, runs[0].Events)
}

func TestRunJSON(t *testing.T) {
	cmd, buf := newRunCmd(&RunOptions{RootOptions: &RootOptions{Format: "json"}}, filepath.Join(scenarioDir, "basic.yaml"))
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string              `json:"status"`
		Data   harness.SuiteResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Results, 1)
	assert.NotEmpty(t, resp.Data.Results[0].Trace)
}

func TestRunConfigOverridesEngine(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "depnotify.cue")
	require.NoError(t, os.WriteFile(cfgPath, []byte("engine: max_dependents: 1"), 0o644))

	scenario := "name: capped\ndescription: config cap applies\n" +
		"dependents: [{name: a}, {name: b}]\n" +
		"steps:\n" +
		"  - add: { subject: s, dependent: a }\n" +
		"  - add: { subject: s, dependent: b }\n" +
		"  - trigger: { subject: s, message: changed }\n" +
		"assertions:\n  - type: event_count\n    kind: overflow\n    count: 1\n"
	scenarioPath := filepath.Join(dir, "capped.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(scenario), 0o644))

	cmd, buf := newRunCmd(&RunOptions{RootOptions: &RootOptions{Format: "text", Config: cfgPath}}, scenarioPath)
	require.NoError(t, cmd.Execute(), buf.String())
	assert.Contains(t, buf.String(), "✓ capped")
}

func TestRunMissingPath(t *testing.T) {
	cmd, buf := newRunCmd(&RunOptions{RootOptions: &RootOptions{Format: "text"}}, filepath.Join(t.TempDir(), "missing"))

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E002]")
}

func TestRunBadDatabase(t *testing.T) {
	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}}
	cmd, buf := newRunCmd(opts, "--db", "/nonexistent/dir/runs.db", scenarioDir)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "failed to open database")
}
