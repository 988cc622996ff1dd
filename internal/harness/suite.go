package harness

import (
	"fmt"
	"path/filepath"
)

// SuiteResult summarizes running every scenario file in a directory.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents one failed scenario run.
type ScenarioFailure struct {
	Scenario string `json:"scenario,omitempty"` // empty when the file never loaded
	Path     string `json:"path"`
	Error    string `json:"error"`
}

// Passed reports whether every scenario in the suite passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

func (r *SuiteResult) addFailure(name, path string, err string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{Scenario: name, Path: path, Error: err})
}

// RunSuite loads and runs every *.yaml scenario under dir, in name order,
// and returns a summary. A scenario that fails to load, fails to execute,
// or fails its assertions counts as failed; the remaining scenarios still
// run.
func RunSuite(dir string) (*SuiteResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan scenario dir: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files under %s", dir)
	}

	result := &SuiteResult{}
	for _, path := range paths {
		result.TotalScenarios++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.addFailure("", path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := Run(scenario)
		if err != nil {
			result.addFailure(scenario.Name, path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		if !runResult.Pass {
			result.addFailure(scenario.Name, path, fmt.Sprintf("scenario assertions failed: %v", runResult.Errors))
			continue
		}

		result.Passed++
	}

	return result, nil
}
