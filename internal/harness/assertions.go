package harness

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/reprotrace/internal/store"
	"github.com/roach88/reprotrace/internal/trace"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string            // Assertion type for categorization
	Expected string            // Human-readable expected outcome
	Actual   string            // Human-readable actual outcome
	Records  []store.RecordRow // Merged rows for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Records) > 0 {
		fmt.Fprintf(&buf, "\nMerged records:\n")
		for _, r := range e.Records {
			fmt.Fprintf(&buf, "  [%d] %s %s %s kind=%s mean=%g std=%g sig=%g\n",
				r.Position, r.Name, r.Label, r.Arg, r.Kind, r.Mean, r.Std, r.Sig)
		}
	}
	return buf.String()
}

func assertRecordCount(result *Result, a Assertion) error {
	if got := result.Summary.Records; got != int64(a.Count) {
		return &AssertionError{
			Type:     AssertRecordCount,
			Expected: fmt.Sprintf("%d merged records", a.Count),
			Actual:   fmt.Sprintf("%d merged records", got),
			Records:  result.Records,
		}
	}
	return nil
}

// assertRecordOrder checks that the INPUTS records of the named functions
// first appear in the given order. Other records may appear in between.
func assertRecordOrder(result *Result, a Assertion) error {
	positions := make(map[string]int64)
	for _, r := range result.Records {
		if r.Label != trace.LabelInputs {
			continue
		}
		if _, seen := positions[r.Name]; !seen {
			positions[r.Name] = r.Position
		}
	}

	for _, name := range a.Names {
		if _, ok := positions[name]; !ok {
			return &AssertionError{
				Type:     AssertRecordOrder,
				Expected: fmt.Sprintf("all functions present: %v", a.Names),
				Actual:   fmt.Sprintf("missing function: %s", name),
				Records:  result.Records,
			}
		}
	}

	for i := 1; i < len(a.Names); i++ {
		prev, curr := a.Names[i-1], a.Names[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertRecordOrder,
				Expected: fmt.Sprintf("functions in order: %v", a.Names),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Records: result.Records,
			}
		}
	}
	return nil
}

// assertStat checks the summary of one argument. Mean and Std must match
// exactly; Sig must lie within the given bounds.
func assertStat(result *Result, a Assertion) error {
	row, ok := selectRow(result.Records, a)
	if !ok {
		return &AssertionError{
			Type:     AssertStat,
			Expected: fmt.Sprintf("occurrence %d of %s", a.Occurrence, describe(a)),
			Actual:   "row not found",
			Records:  result.Records,
		}
	}

	fail := func(field string, want, got any) error {
		return &AssertionError{
			Type:     AssertStat,
			Expected: fmt.Sprintf("%s of %s = %v", field, describe(a), want),
			Actual:   fmt.Sprintf("%s = %v", field, got),
			Records:  result.Records,
		}
	}

	if a.Kind != "" && row.Kind != a.Kind {
		return fail("kind", a.Kind, row.Kind)
	}
	if a.Mean != nil && !sameFloat(*a.Mean, row.Mean) {
		return fail("mean", *a.Mean, row.Mean)
	}
	if a.Std != nil && !sameFloat(*a.Std, row.Std) {
		return fail("std", *a.Std, row.Std)
	}
	if a.SigMin != nil && !(row.Sig >= *a.SigMin) {
		return fail("sig", fmt.Sprintf(">= %g", *a.SigMin), row.Sig)
	}
	if a.SigMax != nil && !(row.Sig <= *a.SigMax) {
		return fail("sig", fmt.Sprintf("<= %g", *a.SigMax), row.Sig)
	}
	return nil
}

func selectRow(rows []store.RecordRow, a Assertion) (store.RecordRow, bool) {
	n := 0
	for _, r := range rows {
		if r.Name != a.Name || r.Arg != a.Arg {
			continue
		}
		if a.Label != "" && r.Label != a.Label {
			continue
		}
		if n == a.Occurrence {
			return r, true
		}
		n++
	}
	return store.RecordRow{}, false
}

func describe(a Assertion) string {
	if a.Label == "" {
		return fmt.Sprintf("%s(%s)", a.Name, a.Arg)
	}
	return fmt.Sprintf("%s(%s) %s", a.Name, a.Arg, a.Label)
}

func sameFloat(want, got float64) bool {
	return want == got || (math.IsNaN(want) && math.IsNaN(got))
}

func assertCallGraphCount(result *Result, a Assertion) error {
	if len(result.Graphs) != a.Count {
		return &AssertionError{
			Type:     AssertCallGraphCount,
			Expected: fmt.Sprintf("%d call graphs", a.Count),
			Actual:   fmt.Sprintf("%d call graphs", len(result.Graphs)),
		}
	}
	return nil
}

// assertCallGraphCycle checks the repetition count of the first node named
// a.Name in graph a.Graph.
func assertCallGraphCycle(result *Result, a Assertion) error {
	if a.Graph < 0 || a.Graph >= len(result.Graphs) {
		return &AssertionError{
			Type:     AssertCallGraphCycle,
			Expected: fmt.Sprintf("call graph %d", a.Graph),
			Actual:   fmt.Sprintf("%d call graphs", len(result.Graphs)),
		}
	}
	g := result.Graphs[a.Graph]
	for _, n := range g.Nodes {
		if n.Name != a.Name {
			continue
		}
		if got := g.Cycle(n.ID); got != a.Cycle {
			return &AssertionError{
				Type:     AssertCallGraphCycle,
				Expected: fmt.Sprintf("%s repeated %d times in graph %d", a.Name, a.Cycle, a.Graph),
				Actual:   fmt.Sprintf("repeated %d times", got),
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertCallGraphCycle,
		Expected: fmt.Sprintf("node %s in graph %d", a.Name, a.Graph),
		Actual:   "node not found",
	}
}

// assertSummary compares the merge summary with a.Expect (subset match).
// Values are compared by their printed form so YAML ints match JSON numbers.
func assertSummary(result *Result, a Assertion) error {
	data, err := json.Marshal(result.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	var actual map[string]any
	if err := json.Unmarshal(data, &actual); err != nil {
		return fmt.Errorf("unmarshal summary: %w", err)
	}

	for key, want := range a.Expect {
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     AssertSummary,
				Expected: fmt.Sprintf("summary field %q", key),
				Actual:   "field not present",
			}
		}
		if fmt.Sprint(want) != fmt.Sprint(got) {
			return &AssertionError{
				Type:     AssertSummary,
				Expected: fmt.Sprintf("%s = %v", key, want),
				Actual:   fmt.Sprintf("%s = %v", key, got),
			}
		}
	}
	return nil
}

func assertMergeError(result *Result, a Assertion) error {
	if result.MergeErr == nil {
		return &AssertionError{
			Type:     AssertMergeError,
			Expected: fmt.Sprintf("merge error %s", a.Code),
			Actual:   "merge succeeded",
			Records:  result.Records,
		}
	}
	if string(result.MergeErr.Code) != a.Code {
		return &AssertionError{
			Type:     AssertMergeError,
			Expected: fmt.Sprintf("merge error %s", a.Code),
			Actual:   result.MergeErr.Error(),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRecordCount:
			err = assertRecordCount(result, assertion)
		case AssertRecordOrder:
			err = assertRecordOrder(result, assertion)
		case AssertStat:
			err = assertStat(result, assertion)
		case AssertCallGraphCount:
			err = assertCallGraphCount(result, assertion)
		case AssertCallGraphCycle:
			err = assertCallGraphCycle(result, assertion)
		case AssertSummary:
			err = assertSummary(result, assertion)
		case AssertMergeError:
			err = assertMergeError(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
