package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a suite path matches no scenario.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("no scenario files found at %s", e.Path)
}

// CollectScenarios expands paths into scenario files. Directories contribute
// their *.yaml and *.yml files (not recursive), sorted by name so suite
// order is stable.
func CollectScenarios(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ScenarioNotFoundError{Path: p}
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		var found []string
		for _, e := range entries {
			if e.IsDir() || !IsScenarioFile(e.Name()) {
				continue
			}
			found = append(found, filepath.Join(p, e.Name()))
		}
		if len(found) == 0 {
			return nil, &ScenarioNotFoundError{Path: p}
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

// IsScenarioFile reports whether name has a scenario extension.
func IsScenarioFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// SuiteResult summarises a batch of scenario runs.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Results  []*Result         `json:"results"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that did not pass.
type ScenarioFailure struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// RunSuite loads and runs every scenario in paths.
//
// For each scenario file:
// 1. Load and validate it
// 2. Run it via harness.Run
// 3. Collect pass/fail
//
// Load and run errors count as failures; the returned error is reserved for
// paths that cannot be expanded.
func RunSuite(ctx context.Context, paths []string, opts ...Option) (*SuiteResult, error) {
	files, err := CollectScenarios(paths)
	if err != nil {
		return nil, err
	}

	suite := &SuiteResult{Results: []*Result{}}
	seen := make(map[string]string, len(files))
	for _, path := range files {
		suite.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			suite.fail(ScenarioFailure{Path: path, Error: err.Error()})
			continue
		}

		if prev, dup := seen[scenario.Name]; dup {
			suite.fail(ScenarioFailure{Path: path, Name: scenario.Name, Error: fmt.Sprintf("duplicate scenario name, also used by %s", prev)})
			continue
		}
		seen[scenario.Name] = path

		result, err := Run(ctx, scenario, opts...)
		if err != nil {
			suite.fail(ScenarioFailure{Path: path, Name: scenario.Name, Error: fmt.Sprintf("scenario execution failed: %v", err)})
			continue
		}
		suite.Results = append(suite.Results, result)

		if !result.Pass {
			suite.fail(ScenarioFailure{
				Path:  path,
				Name:  scenario.Name,
				Error: fmt.Sprintf("scenario assertions failed: %s", strings.Join(result.Errors, "; ")),
			})
			continue
		}
		suite.Passed++
	}
	return suite, nil
}

func (s *SuiteResult) fail(f ScenarioFailure) {
	s.Failed++
	s.Failures = append(s.Failures, f)
}
