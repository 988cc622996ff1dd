package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures the recorded passes of one scenario execution in
// the shape golden files store.
type TraceSnapshot struct {
	Scenario string      `json:"scenario"`
	Passes   []PassTrace `json:"passes"`
}

// marshalSnapshot serializes the recorded passes as indented JSON with
// fingerprints redacted to stable aliases: the first distinct fingerprint
// becomes fp#1, the second fp#2, and so on. Equality structure survives
// while golden files stay still across hash format changes.
func marshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	aliases := make(map[string]string)
	passes := make([]PassTrace, len(result.Passes))
	for i, p := range result.Passes {
		alias, ok := aliases[p.Fingerprint]
		if !ok {
			alias = fmt.Sprintf("fp#%d", len(aliases)+1)
			aliases[p.Fingerprint] = alias
		}
		p.Fingerprint = alias
		passes[i] = p
	}

	return json.MarshalIndent(TraceSnapshot{Scenario: scenarioName, Passes: passes}, "", "  ")
}

// RunWithGolden executes a scenario and compares its trace against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The returned result lets callers assert beyond the trace. The returned
// error covers execution failures; a trace mismatch fails t via goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares a result's recorded passes against the named golden
// file. Useful when a test has already run the scenario and wants the
// comparison without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := marshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
