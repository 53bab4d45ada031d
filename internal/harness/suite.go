package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/vetogate/internal/engine"
)

// ScenarioResult is the result of one scenario file of a suite.
type ScenarioResult struct {
	Path   string       `json:"path"`
	Name   string       `json:"name"`
	Pass   bool         `json:"pass"`
	Errors []string     `json:"errors,omitempty"`
	Trace  []TraceEvent `json:"trace,omitempty"`
}

// SuiteResult aggregates a directory of scenarios.
type SuiteResult struct {
	Total     int              `json:"total"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Scenarios []ScenarioResult `json:"scenarios"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

// FindScenarios lists the *.yaml and *.yml files directly under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// RunDir runs every scenario under dir. A scenario that fails to load or run
// counts as failed; RunDir itself only fails when dir cannot be read.
func RunDir(ctx context.Context, dir string, opts ...engine.EngineOption) (*SuiteResult, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, err
	}
	return RunFiles(ctx, paths, opts...), nil
}

// RunFiles runs the given scenario files in order.
func RunFiles(ctx context.Context, paths []string, opts ...engine.EngineOption) *SuiteResult {
	suite := &SuiteResult{Scenarios: []ScenarioResult{}}
	for _, path := range paths {
		sr := runFile(ctx, path, opts...)
		suite.Total++
		if sr.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
		suite.Scenarios = append(suite.Scenarios, sr)
	}
	return suite
}

func runFile(ctx context.Context, path string, opts ...engine.EngineOption) ScenarioResult {
	sr := ScenarioResult{Path: path, Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}

	scenario, err := LoadScenario(path)
	if err != nil {
		sr.Errors = []string{err.Error()}
		return sr
	}
	sr.Name = scenario.Name

	result, err := Run(ctx, scenario, opts...)
	if err != nil {
		sr.Errors = []string{err.Error()}
		return sr
	}
	sr.Pass = result.Pass
	sr.Errors = result.Errors
	sr.Trace = result.Trace
	return sr
}
