package callchain

import (
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/reprotrace/internal/merge"
	"github.com/roach88/reprotrace/internal/trace"
)

// Call is the identity of one event as seen by the Builder.
type Call struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Label     trace.Label     `json:"label"`
	Backtrace trace.Backtrace `json:"backtrace"`
	Time      uint64          `json:"time"`
}

// QualifiedName joins module and function. Names are NFC-normalized so that
// traces written by different tool versions compare equal.
func QualifiedName(module, function string) string {
	if module == "" {
		return norm.NFC.String(function)
	}
	return norm.NFC.String(module + "." + function)
}

// FromEvent derives the Call of a raw event.
func FromEvent(ev trace.TraceEvent) Call {
	return Call{
		ID:        ev.ID,
		Name:      QualifiedName(ev.Module, ev.Function),
		Label:     ev.Label,
		Backtrace: ev.Backtrace,
		Time:      ev.Time,
	}
}

// FromRecord derives the Call of a merged record.
func FromRecord(rec merge.MergedRecord) Call {
	return Call{
		ID:        rec.ID,
		Name:      QualifiedName(rec.Module, rec.Function),
		Label:     rec.Label,
		Backtrace: rec.Backtrace,
		Time:      rec.Time,
	}
}

// SameOrigin reports whether a and b come from the same function at the same
// call site, regardless of label and time.
func SameOrigin(a, b Call) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Backtrace == b.Backtrace
}

// Closes reports whether out is the OUTPUTS event of the call opened by in.
func Closes(in, out Call) bool {
	return in.Label == trace.LabelInputs &&
		out.Label == trace.LabelOutputs &&
		SameOrigin(in, out) &&
		in.Time == out.Time
}
