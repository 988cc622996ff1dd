package harness

import (
	"github.com/paneldiff/paneldiff/internal/reconcile"
)

// PassTrace records one reconciliation pass: which step triggered it, what
// the controller decided and why, and every cell a patch rewrote. Traces
// are what assertions and golden snapshots compare against.
type PassTrace struct {
	Token       string        `json:"token"`
	Step        int           `json:"step"` // 1-based index of the triggering step
	Decision    string        `json:"decision"`
	Reason      string        `json:"reason"`
	Fingerprint string        `json:"fingerprint"`
	Panels      int           `json:"panels,omitempty"` // rendered panels, build passes only
	Changed     []ChangeTrace `json:"changed,omitempty"`
}

// ChangeTrace is one cell rewrite observed by a patch pass.
type ChangeTrace struct {
	Panel  string `json:"panel"`
	Row    int    `json:"row"`
	Entity string `json:"entity,omitempty"`
	Field  string `json:"field"`
	Key    string `json:"key"`
	Old    string `json:"old"`
	New    string `json:"new"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every assertion held.
	Pass bool `json:"pass"`

	// Passes contains one trace entry per reconciliation pass, in order.
	Passes []PassTrace `json:"passes"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Passes: []PassTrace{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// AddPass appends the trace entry for one pass. step is the 1-based index
// of the scenario step that triggered it.
func (r *Result) AddPass(step int, out reconcile.Outcome) {
	pt := PassTrace{
		Token:       out.Token,
		Step:        step,
		Decision:    out.Decision.String(),
		Reason:      out.Reason,
		Fingerprint: string(out.Fingerprint),
		Panels:      out.Panels,
	}
	for _, ch := range out.Changed {
		pt.Changed = append(pt.Changed, ChangeTrace{
			Panel:  ch.PanelID,
			Row:    ch.RowIndex,
			Entity: ch.EntityID,
			Field:  ch.Field,
			Key:    ch.Key,
			Old:    ch.Old,
			New:    ch.New,
		})
	}
	r.Passes = append(r.Passes, pt)
}
