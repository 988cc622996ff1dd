package harness

import (
	"context"
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the recorded passes to help debug the failure.
type AssertionError struct {
	Type     string      // Assertion type for categorization
	Expected string      // Human-readable expected outcome
	Actual   string      // Human-readable actual outcome
	Passes   []PassTrace // Recorded passes for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Passes) > 0 {
		fmt.Fprintf(&buf, "\nRecorded passes:\n")
		for i, p := range e.Passes {
			fmt.Fprintf(&buf, "  [%d] %s %s (%s) changed=%d\n",
				i+1, p.Token, p.Decision, p.Reason, len(p.Changed))
		}
	}

	return buf.String()
}

// evaluateAssertions evaluates all assertions against the recorded passes
// and the runner's final state. Returns a slice of error messages for
// failed assertions.
func evaluateAssertions(ctx context.Context, assertions []Assertion, r *runner, result *Result) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertDecision:
			err = assertDecision(assertion, result)
		case AssertCell:
			err = assertCell(assertion, r)
		case AssertHistoryCount:
			err = assertHistoryCount(ctx, assertion, r)
		case AssertHistoryLast:
			err = assertHistoryLast(ctx, assertion, r)
		case AssertFingerprintSame:
			err = assertFingerprintSame(assertion, result)
		case AssertFingerprintDiffers:
			err = assertFingerprintDiffers(assertion, result)
		case AssertPassCount:
			err = assertPassCount(assertion, result)
		case AssertMarkedCount:
			err = assertMarkedCount(assertion, r)
		default:
			// Unreachable after validation; kept so a hand-built scenario
			// that skipped LoadScenario still reports instead of passing.
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}

		if err != nil {
			errors = append(errors, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return errors
}

// passAt fetches a recorded pass by its 1-based number.
func passAt(result *Result, n int) (PassTrace, error) {
	if n < 1 || n > len(result.Passes) {
		return PassTrace{}, fmt.Errorf("pass %d out of range: scenario ran %d passes", n, len(result.Passes))
	}
	return result.Passes[n-1], nil
}

// assertDecision checks one pass's decision and, when given, that its
// reason contains the expected substring.
func assertDecision(a Assertion, result *Result) error {
	p, err := passAt(result, a.Pass)
	if err != nil {
		return err
	}

	if p.Decision != a.Want {
		return &AssertionError{
			Type:     AssertDecision,
			Expected: fmt.Sprintf("pass %d decides %s", a.Pass, a.Want),
			Actual:   fmt.Sprintf("%s (%s)", p.Decision, p.Reason),
			Passes:   result.Passes,
		}
	}

	if a.Reason != "" && !strings.Contains(p.Reason, a.Reason) {
		return &AssertionError{
			Type:     AssertDecision,
			Expected: fmt.Sprintf("pass %d reason contains %q", a.Pass, a.Reason),
			Actual:   p.Reason,
			Passes:   result.Passes,
		}
	}

	return nil
}

// assertCell checks a rendered cell's value and, when the assertion sets
// marked, whether its changed marker is showing at the final clock instant.
func assertCell(a Assertion, r *runner) error {
	want := fmt.Sprintf("%s[%d].%s = %q", a.Panel, a.Row, a.Field, a.Value)

	st := r.ctrl.Structure()
	if st == nil {
		return &AssertionError{Type: AssertCell, Expected: want, Actual: "no structure rendered"}
	}

	view, ok := st.Panel(a.Panel)
	if !ok {
		return &AssertionError{Type: AssertCell, Expected: want, Actual: fmt.Sprintf("panel %q not rendered", a.Panel)}
	}
	if a.Row >= len(view.Rows) {
		return &AssertionError{Type: AssertCell, Expected: want, Actual: fmt.Sprintf("panel %q has %d rows", a.Panel, len(view.Rows))}
	}

	cell, ok := view.Rows[a.Row].Cell(a.Field)
	if !ok {
		return &AssertionError{Type: AssertCell, Expected: want, Actual: fmt.Sprintf("row has no field %q", a.Field)}
	}

	if cell.Value != a.Value {
		return &AssertionError{Type: AssertCell, Expected: want, Actual: fmt.Sprintf("%q", cell.Value)}
	}

	if a.Marked != nil {
		got := cell.Marked(r.clock.Now())
		if got != *a.Marked {
			return &AssertionError{
				Type:     AssertCell,
				Expected: fmt.Sprintf("%s[%d].%s marked=%t", a.Panel, a.Row, a.Field, *a.Marked),
				Actual:   fmt.Sprintf("marked=%t", got),
			}
		}
	}

	return nil
}

// assertHistoryCount checks how many records a composite key accumulated.
func assertHistoryCount(ctx context.Context, a Assertion, r *runner) error {
	recs, err := r.store.ReadHistory(ctx, a.Key)
	if err != nil {
		return fmt.Errorf("read history %q: %w", a.Key, err)
	}

	if len(recs) != a.Count {
		return &AssertionError{
			Type:     AssertHistoryCount,
			Expected: fmt.Sprintf("%d records under %q", a.Count, a.Key),
			Actual:   fmt.Sprintf("%d records", len(recs)),
		}
	}

	return nil
}

// assertHistoryLast checks the newest record under a composite key. Old and
// new values always compare; origin compares only when the assertion names
// one.
func assertHistoryLast(ctx context.Context, a Assertion, r *runner) error {
	recs, err := r.store.ReadHistory(ctx, a.Key)
	if err != nil {
		return fmt.Errorf("read history %q: %w", a.Key, err)
	}

	want := fmt.Sprintf("newest record under %q is %q -> %q", a.Key, a.Old, a.New)
	if len(recs) == 0 {
		return &AssertionError{Type: AssertHistoryLast, Expected: want, Actual: "no records"}
	}

	last := recs[len(recs)-1]
	if last.OldValue != a.Old || last.NewValue != a.New {
		return &AssertionError{
			Type:     AssertHistoryLast,
			Expected: want,
			Actual:   fmt.Sprintf("%q -> %q", last.OldValue, last.NewValue),
		}
	}

	if a.Origin != "" && string(last.Origin) != a.Origin {
		return &AssertionError{
			Type:     AssertHistoryLast,
			Expected: fmt.Sprintf("newest record under %q has origin %q", a.Key, a.Origin),
			Actual:   string(last.Origin),
		}
	}

	return nil
}

// assertFingerprintSame checks the listed passes all saw one fingerprint.
func assertFingerprintSame(a Assertion, result *Result) error {
	first, err := passAt(result, a.Passes[0])
	if err != nil {
		return err
	}

	for _, n := range a.Passes[1:] {
		p, err := passAt(result, n)
		if err != nil {
			return err
		}
		if p.Fingerprint != first.Fingerprint {
			return &AssertionError{
				Type:     AssertFingerprintSame,
				Expected: fmt.Sprintf("passes %v share a fingerprint", a.Passes),
				Actual:   fmt.Sprintf("pass %d diverges from pass %d", n, a.Passes[0]),
				Passes:   result.Passes,
			}
		}
	}

	return nil
}

// assertFingerprintDiffers checks two passes saw different fingerprints.
func assertFingerprintDiffers(a Assertion, result *Result) error {
	p1, err := passAt(result, a.Passes[0])
	if err != nil {
		return err
	}
	p2, err := passAt(result, a.Passes[1])
	if err != nil {
		return err
	}

	if p1.Fingerprint == p2.Fingerprint {
		return &AssertionError{
			Type:     AssertFingerprintDiffers,
			Expected: fmt.Sprintf("passes %d and %d saw different fingerprints", a.Passes[0], a.Passes[1]),
			Actual:   fmt.Sprintf("both saw %s", p1.Fingerprint),
			Passes:   result.Passes,
		}
	}

	return nil
}

// assertPassCount checks how many passes the scenario ran.
func assertPassCount(a Assertion, result *Result) error {
	if len(result.Passes) != a.Count {
		return &AssertionError{
			Type:     AssertPassCount,
			Expected: fmt.Sprintf("%d passes", a.Count),
			Actual:   fmt.Sprintf("%d passes", len(result.Passes)),
			Passes:   result.Passes,
		}
	}
	return nil
}

// assertMarkedCount checks how many cells still show a changed marker at
// the final clock instant. A scenario that never built counts zero.
func assertMarkedCount(a Assertion, r *runner) error {
	got := 0
	if st := r.ctrl.Structure(); st != nil {
		got = st.MarkedCount(r.clock.Now())
	}

	if got != a.Count {
		return &AssertionError{
			Type:     AssertMarkedCount,
			Expected: fmt.Sprintf("%d marked cells", a.Count),
			Actual:   fmt.Sprintf("%d marked cells", got),
		}
	}

	return nil
}
