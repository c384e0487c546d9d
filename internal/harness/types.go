package harness

import (
	"github.com/roach88/reprotrace/internal/callchain"
	"github.com/roach88/reprotrace/internal/merge"
	"github.com/roach88/reprotrace/internal/store"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool

	// Records are the session's rows as read back from the store.
	Records []store.RecordRow

	// Graphs are the call graphs as read back from the store.
	Graphs []*callchain.CallGraph

	// Summary is the merge summary.
	Summary merge.Summary

	// MergeErr is set when the runs could not be aligned.
	MergeErr *merge.MergeError

	// Malformed counts invocations the call graph builder discarded.
	Malformed int

	// Errors contains assertion failure messages.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Records: []store.RecordRow{},
		Graphs:  []*callchain.CallGraph{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
