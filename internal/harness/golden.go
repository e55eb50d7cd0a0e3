package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// FormatTrace renders a result as the golden text format: a header line
// followed by one line per trace event.
//
//	# scenario basic run run-default
//	seq=1 deliver subject=s message=changed dependent=d1
//	seq=2 done subject=s message=changed
func FormatTrace(result *Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# scenario %s run %s\n", result.Scenario, result.RunID)
	for _, ev := range result.Trace {
		buf.WriteString(ev.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// RunWithGolden executes a scenario and compares the trace against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, FormatTrace(result))
}
