package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir holds golden traces, relative to the test's package directory.
const GoldenDir = "testdata/golden"

// RunWithGolden executes a scenario, fails the test on any expectation or
// assertion error, and compares the trace against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		t.Fatalf("run scenario %s: %v", scenario.Name, err)
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}
	AssertGolden(t, scenario.Name, result)
	return result
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(FormatTrace(result.Trace)))
}
