package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/paneldiff/paneldiff/internal/config"
	"github.com/paneldiff/paneldiff/internal/panel"
)

// Scenario defines a reconciliation test scenario.
// Scenarios validate change-detection behavior by mutating session data
// step by step and asserting on the passes those mutations trigger.
type Scenario struct {
	// Name uniquely identifies this scenario.
	// It doubles as the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Panels is the panel configuration the scenario runs under, in the
	// same shape as a config file's panels list.
	Panels []config.Definition `yaml:"panels"`

	// Session is the session id the scenario starts in.
	// Defaults to "sess-1".
	Session string `yaml:"session,omitempty"`

	// Surface is the surface id fingerprints persist under.
	// Defaults to "surface-1".
	Surface string `yaml:"surface,omitempty"`

	// StartTime is the RFC 3339 instant the scenario clock starts at.
	// Defaults to 2025-01-01T00:00:00Z.
	StartTime string `yaml:"start_time,omitempty"`

	// Tokens is an optional fixed token per pass for deterministic traces.
	// If empty, tokens are generated as pass-1, pass-2, and so on.
	Tokens []string `yaml:"tokens,omitempty"`

	// Steps contains the mutations to execute, each carrying exactly one
	// directive. Every directive except advance runs a pass.
	Steps []Step `yaml:"steps"`

	// Assertions validate the recorded passes and the final structure.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario step. Exactly one directive must be set.
type Step struct {
	// Rows upserts cell data: panel id to row list, each row a map of
	// storage key to value. Row index follows list position.
	Rows map[string][]panel.Row `yaml:"rows,omitempty"`

	// DeleteRow removes one row of a panel's data.
	DeleteRow *RowTarget `yaml:"delete_row,omitempty"`

	// DeleteKeys removes the named keys from every row of a panel.
	DeleteKeys *KeysTarget `yaml:"delete_keys,omitempty"`

	// DisableField disables a configured field, renumbers the panel's
	// storage positions, and migrates stored data to the new layout.
	DisableField *FieldTarget `yaml:"disable_field,omitempty"`

	// EnableField re-enables a previously disabled field and renumbers.
	EnableField *FieldTarget `yaml:"enable_field,omitempty"`

	// SwitchSession makes the named session the active one. The next pass
	// rebuilds; structures never survive a session swap.
	SwitchSession string `yaml:"switch_session,omitempty"`

	// Advance moves the clock forward by a Go duration ("3s", "150ms").
	// No pass runs.
	Advance string `yaml:"advance,omitempty"`

	// Reconcile runs a pass with no preceding mutation.
	Reconcile bool `yaml:"reconcile,omitempty"`
}

// RowTarget names one row of one panel.
type RowTarget struct {
	Panel string `yaml:"panel"`
	Row   int    `yaml:"row"`
}

// KeysTarget names storage keys within one panel.
type KeysTarget struct {
	Panel string   `yaml:"panel"`
	Keys  []string `yaml:"keys"`
}

// FieldTarget names one configured field by its display name.
type FieldTarget struct {
	Panel string `yaml:"panel"`
	Field string `yaml:"field"`
}

// Assertion validates recorded passes or final rendered state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "decision": Check the decision and reason of one pass
	// - "cell": Check a rendered cell's value and marker
	// - "history_count": Check how many records a composite key holds
	// - "history_last": Check the newest record under a composite key
	// - "fingerprint_same": Check the listed passes share one fingerprint
	// - "fingerprint_differs": Check two passes saw different fingerprints
	// - "pass_count": Check how many passes the scenario ran
	// - "marked_count": Check how many cells still show a marker
	Type string `yaml:"type"`

	// Pass is the 1-based pass number (used by decision).
	Pass int `yaml:"pass,omitempty"`

	// Want is the expected decision, "build" or "patch" (used by decision).
	Want string `yaml:"want,omitempty"`

	// Reason is a substring the pass reason must contain (used by decision).
	Reason string `yaml:"reason,omitempty"`

	// Panel, Row, and Field locate a rendered cell (used by cell).
	Panel string `yaml:"panel,omitempty"`
	Row   int    `yaml:"row,omitempty"`
	Field string `yaml:"field,omitempty"`

	// Value is the expected cell value (used by cell).
	Value string `yaml:"value,omitempty"`

	// Marked is the expected marker state at the final clock instant
	// (used by cell). Omitted means the marker is not checked.
	Marked *bool `yaml:"marked,omitempty"`

	// Key is the history composite key, e.g. "character:年龄"
	// (used by history_count and history_last).
	Key string `yaml:"key,omitempty"`

	// Count is the expected number (used by history_count, pass_count,
	// and marked_count).
	Count int `yaml:"count,omitempty"`

	// Old, New, and Origin are the expected newest-record fields
	// (used by history_last). Origin is optional.
	Old    string `yaml:"old,omitempty"`
	New    string `yaml:"new,omitempty"`
	Origin string `yaml:"origin,omitempty"`

	// Passes lists 1-based pass numbers to compare
	// (used by fingerprint_same and fingerprint_differs).
	Passes []int `yaml:"passes,omitempty"`
}

// Assertion type constants.
const (
	AssertDecision           = "decision"
	AssertCell               = "cell"
	AssertHistoryCount       = "history_count"
	AssertHistoryLast        = "history_last"
	AssertFingerprintSame    = "fingerprint_same"
	AssertFingerprintDiffers = "fingerprint_differs"
	AssertPassCount          = "pass_count"
	AssertMarkedCount        = "marked_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Panels) == 0 {
		return fmt.Errorf("panels list is required and must be non-empty")
	}

	// The panel list obeys the same rules as a config file.
	if errs := config.Validate(&config.Document{Panels: s.Panels}); len(errs) > 0 {
		return fmt.Errorf("panels: %w", errs[0])
	}

	if s.StartTime != "" {
		if _, err := time.Parse(time.RFC3339, s.StartTime); err != nil {
			return fmt.Errorf("start_time: %w", err)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	passes := 0
	for i, step := range s.Steps {
		if err := validateStep(&step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.runsPass() {
			passes++
		}
	}

	if len(s.Tokens) > 0 && len(s.Tokens) < passes {
		return fmt.Errorf("tokens: %d provided but the scenario runs %d passes", len(s.Tokens), passes)
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that a step carries exactly one well-formed directive.
func validateStep(st *Step) error {
	if n := st.directives(); n != 1 {
		return fmt.Errorf("%d directives set, want exactly one", n)
	}

	switch {
	case st.Rows != nil:
		if len(st.Rows) == 0 {
			return fmt.Errorf("rows: at least one panel is required")
		}
	case st.DeleteRow != nil:
		if st.DeleteRow.Panel == "" {
			return fmt.Errorf("delete_row: panel is required")
		}
		if st.DeleteRow.Row < 0 {
			return fmt.Errorf("delete_row: row must be non-negative")
		}
	case st.DeleteKeys != nil:
		if st.DeleteKeys.Panel == "" {
			return fmt.Errorf("delete_keys: panel is required")
		}
		if len(st.DeleteKeys.Keys) == 0 {
			return fmt.Errorf("delete_keys: keys list is required and must be non-empty")
		}
	case st.DisableField != nil:
		if st.DisableField.Panel == "" || st.DisableField.Field == "" {
			return fmt.Errorf("disable_field: panel and field are required")
		}
	case st.EnableField != nil:
		if st.EnableField.Panel == "" || st.EnableField.Field == "" {
			return fmt.Errorf("enable_field: panel and field are required")
		}
	case st.Advance != "":
		if _, err := time.ParseDuration(st.Advance); err != nil {
			return fmt.Errorf("advance: %w", err)
		}
	}

	return nil
}

// directives counts how many directives the step carries.
func (st *Step) directives() int {
	n := 0
	if st.Rows != nil {
		n++
	}
	if st.DeleteRow != nil {
		n++
	}
	if st.DeleteKeys != nil {
		n++
	}
	if st.DisableField != nil {
		n++
	}
	if st.EnableField != nil {
		n++
	}
	if st.SwitchSession != "" {
		n++
	}
	if st.Advance != "" {
		n++
	}
	if st.Reconcile {
		n++
	}
	return n
}

// runsPass reports whether executing the step triggers a reconciliation
// pass. Only advance sits out.
func (st *Step) runsPass() bool {
	return st.Advance == ""
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDecision:
		if a.Pass < 1 {
			return fmt.Errorf("assertions[%d]: pass must be at least 1 for decision", index)
		}
		if a.Want != "build" && a.Want != "patch" {
			return fmt.Errorf("assertions[%d]: want must be \"build\" or \"patch\" for decision", index)
		}
	case AssertCell:
		if a.Panel == "" {
			return fmt.Errorf("assertions[%d]: panel is required for cell", index)
		}
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for cell", index)
		}
		if a.Row < 0 {
			return fmt.Errorf("assertions[%d]: row must be non-negative for cell", index)
		}
	case AssertHistoryCount:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for history_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for history_count", index)
		}
	case AssertHistoryLast:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for history_last", index)
		}
	case AssertFingerprintSame:
		if len(a.Passes) < 2 {
			return fmt.Errorf("assertions[%d]: at least two passes are required for fingerprint_same", index)
		}
	case AssertFingerprintDiffers:
		if len(a.Passes) != 2 {
			return fmt.Errorf("assertions[%d]: exactly two passes are required for fingerprint_differs", index)
		}
	case AssertPassCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for pass_count", index)
		}
	case AssertMarkedCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for marked_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
