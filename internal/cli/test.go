package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Golden string // golden trace directory; empty skips golden comparison
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios against a fresh in-memory chain each.

Every scenario deploys its manifest, runs its setup and flow, and checks its
expectations and assertions. With --golden, each trace is also compared with
<golden>/<scenario name>.golden.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  vetogate test ./scenarios
  vetogate test ./scenarios --filter "scenario_b_*"
  vetogate test ./scenarios --golden ./golden --update
  vetogate test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Golden, "golden", "", "directory of golden traces to compare against")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files (requires --golden)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	cfg, err := opts.prepare()
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	if _, err := os.Stat(scenariosDir); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}
	if opts.Update && opts.Golden == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}

	paths, err := harness.FindScenarios(scenariosDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	paths, err = filterScenarios(paths, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --filter", err)
	}

	if len(paths) == 0 {
		if formatter.Format == "json" {
			return formatter.Success(harness.SuiteResult{Scenarios: []harness.ScenarioResult{}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	suite := harness.RunFiles(commandContext(cmd), paths, engine.WithMaxSteps(cfg.MaxSteps))
	if opts.Golden != "" {
		for i := range suite.Scenarios {
			checkGolden(&suite.Scenarios[i], opts)
		}
		recount(suite)
	}

	if formatter.Format == "json" {
		return outputTestJSON(formatter, suite)
	}
	return outputTestText(formatter, suite)
}

// filterScenarios keeps the paths whose base name without extension matches
// the glob pattern.
func filterScenarios(paths []string, pattern string) ([]string, error) {
	if pattern == "" {
		return paths, nil
	}
	var out []string
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, path)
		}
	}
	return out, nil
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(dir, name string) string {
	return filepath.Join(dir, name+".golden")
}

// checkGolden compares a passing scenario's trace with its golden file, or
// rewrites the file when updating. A missing golden file is not an error.
func checkGolden(sr *harness.ScenarioResult, opts *TestOptions) {
	if !sr.Pass {
		return
	}
	path := goldenFilePath(opts.Golden, sr.Name)
	trace := harness.FormatTrace(sr.Trace)

	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err != nil {
			fail(sr, fmt.Sprintf("failed to create golden directory: %v", err))
			return
		}
		if err := os.WriteFile(path, []byte(trace), 0o644); err != nil {
			fail(sr, fmt.Sprintf("failed to write golden file: %v", err))
		}
		return
	}

	golden, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		fail(sr, fmt.Sprintf("failed to read golden file: %v", err))
		return
	}
	if string(golden) != trace {
		fail(sr, "trace does not match golden file (run with --update to regenerate)")
	}
}

func fail(sr *harness.ScenarioResult, msg string) {
	sr.Pass = false
	sr.Errors = append(sr.Errors, msg)
}

func recount(suite *harness.SuiteResult) {
	suite.Passed, suite.Failed = 0, 0
	for _, sr := range suite.Scenarios {
		if sr.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
	}
}

// outputTestJSON outputs the suite result as JSON.
func outputTestJSON(formatter *OutputFormatter, suite *harness.SuiteResult) error {
	response := CLIResponse{Status: "ok", Data: suite}
	if !suite.Pass() {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "test_failed",
			Message: fmt.Sprintf("%d scenario(s) failed", suite.Failed),
		}
	}
	if err := formatter.encode(response); err != nil {
		return err
	}

	if !suite.Pass() {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}
	return nil
}

// outputTestText outputs one line per scenario and a summary.
func outputTestText(formatter *OutputFormatter, suite *harness.SuiteResult) error {
	w := formatter.Writer

	for _, sr := range suite.Scenarios {
		if sr.Pass {
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
			if formatter.Verbose {
				for _, line := range strings.Split(strings.TrimSuffix(harness.FormatTrace(sr.Trace), "\n"), "\n") {
					fmt.Fprintf(w, "    %s\n", line)
				}
			}
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.Total)

	if !suite.Pass() {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
