package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSuite_CheckedInScenarios(t *testing.T) {
	suite, err := RunSuite(context.Background(), []string{scenarioDir})
	require.NoError(t, err)

	assert.Equal(t, suite.Total, suite.Passed, "failures: %+v", suite.Failures)
	assert.Zero(t, suite.Failed)
	assert.Len(t, suite.Results, suite.Total)
}

func TestRunSuite_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("a_good.yaml", "name: good\ndescription: ok\nsteps: [{count: {}}]\n")
	write("b_broken.yml", "name: broken\n")
	write("c_failing.yaml", "name: failing\ndescription: wrong\nsteps: [{count: {}}]\nassertions: [{type: done_count, count: 1}]\n")
	write("notes.txt", "ignored")

	suite, err := RunSuite(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, 3, suite.Total)
	assert.Equal(t, 1, suite.Passed)
	assert.Equal(t, 2, suite.Failed)
	require.Len(t, suite.Failures, 2)
	assert.Contains(t, suite.Failures[0].Path, "b_broken.yml")
	assert.Contains(t, suite.Failures[0].Error, "description is required")
	assert.Equal(t, "failing", suite.Failures[1].Name)
	assert.Contains(t, suite.Failures[1].Error, "scenario assertions failed")
}

func TestRunSuite_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	body := []byte("name: same\ndescription: ok\nsteps: [{count: {}}]\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), body, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), body, 0o644))

	reg := prometheus.NewRegistry()
	suite, err := RunSuite(context.Background(), []string{dir}, WithMetrics(reg))
	require.NoError(t, err)

	assert.Equal(t, 1, suite.Passed)
	require.Len(t, suite.Failures, 1)
	assert.Contains(t, suite.Failures[0].Error, "duplicate scenario name")
}

func TestRunSuite_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	suite, err := RunSuite(context.Background(), []string{scenarioDir}, WithMetrics(reg))
	require.NoError(t, err)
	require.Zero(t, suite.Failed)

	families, err := reg.Gather()
	require.NoError(t, err)

	scenarios := map[string]bool{}
	for _, mf := range families {
		if mf.GetName() != "depnotify_triggers_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "scenario" {
					scenarios[lp.GetValue()] = true
				}
			}
		}
	}
	assert.True(t, scenarios["basic"], "engine metrics carry the scenario label")
}

func TestCollectScenarios_NotFound(t *testing.T) {
	_, err := CollectScenarios([]string{filepath.Join(t.TempDir(), "nope")})
	var nf *ScenarioNotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = CollectScenarios([]string{t.TempDir()})
	assert.True(t, errors.As(err, &nf), "empty directory has no scenarios")
}

func TestIsScenarioFile(t *testing.T) {
	assert.True(t, IsScenarioFile("a.yaml"))
	assert.True(t, IsScenarioFile("B.YML"))
	assert.False(t, IsScenarioFile("a.yaml.swp"))
	assert.False(t, IsScenarioFile("README"))
}
