package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario drops scenario YAML into a temp file and returns its path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalScenario = `
name: minimal
description: "Minimal valid scenario"
panels:
  - id: character
    fields:
      - name: 姓名
steps:
  - reconcile: true
assertions:
  - type: pass_count
    count: 1
`

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/value-change.yaml")
	require.NoError(t, err)

	assert.Equal(t, "value-change-patches", scenario.Name)
	assert.NotEmpty(t, scenario.Description)
	require.Len(t, scenario.Panels, 1)
	assert.Equal(t, "character", scenario.Panels[0].ID)
	assert.Len(t, scenario.Panels[0].Fields, 2)
	assert.Equal(t, []string{"pass-1", "pass-2", "pass-3"}, scenario.Tokens)
	require.Len(t, scenario.Steps, 3)
	assert.Equal(t, "林", scenario.Steps[0].Rows["character"][0]["col_1"])
	assert.True(t, scenario.Steps[2].Reconcile)
	assert.NotEmpty(t, scenario.Assertions)
}

func TestLoadScenario_MinimalFile(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, minimalScenario))
	require.NoError(t, err)
	assert.Equal(t, "minimal", scenario.Name)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	content := `
name: typo
description: "Catches the assertion/assertions typo"
panels:
  - id: character
    fields:
      - name: 姓名
steps:
  - reconcile: true
assertion:
  - type: pass_count
    count: 1
`
	_, err := LoadScenario(writeScenario(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
	assert.Contains(t, err.Error(), "assertion")
}

func TestLoadScenario_MissingName(t *testing.T) {
	content := `
description: "Missing name"
panels:
  - id: character
    fields:
      - name: 姓名
steps:
  - reconcile: true
assertions:
  - type: pass_count
    count: 1
`
	_, err := LoadScenario(writeScenario(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestLoadScenario_MissingDescription(t *testing.T) {
	content := `
name: test
panels:
  - id: character
    fields:
      - name: 姓名
steps:
  - reconcile: true
assertions:
  - type: pass_count
    count: 1
`
	_, err := LoadScenario(writeScenario(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "description is required")
}

func TestLoadScenario_MissingPanels(t *testing.T) {
	content := `
name: test
description: "No panels"
steps:
  - reconcile: true
assertions:
  - type: pass_count
    count: 1
`
	_, err := LoadScenario(writeScenario(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panels list is required")
}

func TestLoadScenario_InvalidPanels(t *testing.T) {
	content := `
name: test
description: "Duplicate panel ids"
panels:
  - id: character
    fields:
      - name: 姓名
  - id: character
    fields:
      - name: 年龄
steps:
  - reconcile: true
assertions:
  - type: pass_count
    count: 1
`
	_, err := LoadScenario(writeScenario(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E102")
}

func TestLoadScenario_BadStartTime(t *testing.T) {
	content := `
name: test
description: "Unparseable start time"
start_time: "yesterday"
panels:
  - id: character
    fields:
      - name: 姓名
steps:
  - reconcile: true
assertions:
  - type: pass_count
    count: 1
`
	_, err := LoadScenario(writeScenario(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start_time")
}

func TestLoadScenario_MissingSteps(t *testing.T) {
	content := `
name: test
description: "No steps"
panels:
  - id: character
    fields:
      - name: 姓名
assertions:
  - type: pass_count
    count: 0
`
	_, err := LoadScenario(writeScenario(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps list is required")
}

func TestLoadScenario_StepWithoutDirective(t *testing.T) {
	content := `
name: test
description: "Step carries nothing"
panels:
  - id: character
    fields:
      - name: 姓名
steps:
  - reconcile: false
assertions:
  - type: pass_count
    count: 0
`
	_, err := LoadScenario(writeScenario(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[0]")
	assert.Contains(t, err.Error(), "0 directives")
}

func TestLoadScenario_StepWithTwoDirectives(t *testing.T) {
	content := `
name: test
description: "Step carries two directives"
panels:
  - id: character
    fields:
      - name: 姓名
steps:
  - advance: 3s
    reconcile: true
assertions:
  - type: pass_count
    count: 1
`
	_, err := LoadScenario(writeScenario(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 directives")
}

func TestLoadScenario_BadAdvanceDuration(t *testing.T) {
	content := `
name: test
description: "Advance is not a duration"
panels:
  - id: character
    fields:
      - name: 姓名
steps:
  - advance: "soon"
assertions:
  - type: pass_count
    count: 0
`
	_, err := LoadScenario(writeScenario(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "advance")
}

func TestLoadScenario_TooFewTokens(t *testing.T) {
	content := `
name: test
description: "One token for two passes"
panels:
  - id: character
    fields:
      - name: 姓名
tokens: [only-one]
steps:
  - reconcile: true
  - reconcile: true
assertions:
  - type: pass_count
    count: 2
`
	_, err := LoadScenario(writeScenario(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 provided but the scenario runs 2 passes")
}

func TestLoadScenario_MissingAssertions(t *testing.T) {
	content := `
name: test
description: "No assertions"
panels:
  - id: character
    fields:
      - name: 姓名
steps:
  - reconcile: true
`
	_, err := LoadScenario(writeScenario(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertions list is required")
}

func TestValidateAssertion_DecisionRules(t *testing.T) {
	err := validateAssertion(0, &Assertion{Type: AssertDecision, Want: "build"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass must be at least 1")

	err = validateAssertion(0, &Assertion{Type: AssertDecision, Pass: 1, Want: "rebuild"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `want must be "build" or "patch"`)

	assert.NoError(t, validateAssertion(0, &Assertion{Type: AssertDecision, Pass: 1, Want: "patch"}))
}

func TestValidateAssertion_CellRules(t *testing.T) {
	err := validateAssertion(0, &Assertion{Type: AssertCell, Field: "姓名"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panel is required")

	err = validateAssertion(0, &Assertion{Type: AssertCell, Panel: "character"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field is required")

	assert.NoError(t, validateAssertion(0, &Assertion{Type: AssertCell, Panel: "character", Field: "姓名"}))
}

func TestValidateAssertion_HistoryRules(t *testing.T) {
	err := validateAssertion(0, &Assertion{Type: AssertHistoryCount, Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key is required")

	err = validateAssertion(0, &Assertion{Type: AssertHistoryLast})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key is required")

	assert.NoError(t, validateAssertion(0, &Assertion{Type: AssertHistoryLast, Key: "character:姓名", Old: "a", New: "b"}))
}

func TestValidateAssertion_FingerprintRules(t *testing.T) {
	err := validateAssertion(0, &Assertion{Type: AssertFingerprintSame, Passes: []int{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least two passes")

	err = validateAssertion(0, &Assertion{Type: AssertFingerprintDiffers, Passes: []int{1, 2, 3}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly two passes")

	assert.NoError(t, validateAssertion(0, &Assertion{Type: AssertFingerprintSame, Passes: []int{1, 2}}))
	assert.NoError(t, validateAssertion(0, &Assertion{Type: AssertFingerprintDiffers, Passes: []int{1, 2}}))
}

func TestValidateAssertion_UnknownType(t *testing.T) {
	err := validateAssertion(3, &Assertion{Type: "trace_contains"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `assertions[3]: unknown assertion type "trace_contains"`)
}

func TestStep_Directives(t *testing.T) {
	assert.Equal(t, 0, (&Step{}).directives())
	assert.Equal(t, 1, (&Step{Reconcile: true}).directives())
	assert.Equal(t, 1, (&Step{SwitchSession: "sess-2"}).directives())
	assert.Equal(t, 2, (&Step{Advance: "3s", Reconcile: true}).directives())
}

func TestStep_RunsPass(t *testing.T) {
	assert.True(t, (&Step{Reconcile: true}).runsPass())
	assert.False(t, (&Step{Advance: "3s"}).runsPass())
}
