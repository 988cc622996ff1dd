// Package harness executes reconciliation scenarios as reproducible tests.
//
// A scenario declares a panel configuration, a sequence of data mutations,
// and assertions over the passes those mutations trigger. The harness wires
// a fresh in-memory store, a deterministic clock, and a fixed token stream,
// runs every step through the real controller, and records one trace entry
// per pass.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	panels:
//	  - id: character
//	    kind: single
//	    fields:
//	      - name: 姓名
//	      - name: 年龄
//	tokens: [pass-1, pass-2]
//	steps:
//	  - rows:
//	      character:
//	        - {col_1: "林", col_2: "22"}
//	  - rows:
//	      character:
//	        - {col_1: "白"}
//	assertions:
//	  - type: decision
//	    pass: 2
//	    want: patch
//	  - type: cell
//	    panel: character
//	    row: 0
//	    field: 姓名
//	    value: "白"
//	    marked: true
//
// Each step carries exactly one directive. Directives that mutate data
// (rows, delete_row, delete_keys), reconfigure fields (disable_field,
// enable_field), or switch the session run a reconciliation pass after the
// mutation; advance only moves the clock, and reconcile runs a bare pass.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - decision: Verifies the decision (and optionally the reason) of pass N
//   - cell: Verifies a rendered cell's value and optionally its marker
//   - history_count: Verifies how many records a composite key accumulated
//   - history_last: Verifies the newest record under a composite key
//   - fingerprint_same: Verifies the listed passes share one fingerprint
//   - fingerprint_differs: Verifies two passes saw different fingerprints
//   - pass_count: Verifies how many passes the scenario ran
//   - marked_count: Verifies how many cells still show a changed marker
//
// # Deterministic Testing
//
// Every run executes against:
//
//   - A fresh in-memory SQLite store, isolated per scenario
//   - A manually advanced clock (testutil.WallClock) starting at start_time
//   - Fixed pass tokens (from scenario.tokens or generated as pass-N)
//
// This makes traces identical across runs, which golden snapshot comparison
// depends on.
//
// # Usage
//
// Load and run a scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/value-change.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
