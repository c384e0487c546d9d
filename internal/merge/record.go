package merge

import (
	"github.com/roach88/reprotrace/internal/stats"
	"github.com/roach88/reprotrace/internal/trace"
)

// ArgStat is the statistic of one argument.
type ArgStat struct {
	Name string
	Stat *stats.Statistic
}

// MergedRecord is the cross-run summary of one aligned position.
//
// Time, Module, Function, Label and Backtrace come from run 0; they are equal
// across runs except for backtraces under relaxed checking. ID is run 0's
// run-local id and carries no cross-run meaning.
type MergedRecord struct {
	Position  int64
	ID        int64
	Time      uint64
	Module    string
	Function  string
	Label     trace.Label
	Backtrace trace.Backtrace

	// Stats are in run 0's argument order.
	Stats []ArgStat
}

// Name returns the qualified function name.
func (r MergedRecord) Name() string {
	if r.Module == "" {
		return r.Function
	}
	return r.Module + "." + r.Function
}

// Stat returns the statistic of the named argument, or nil.
func (r MergedRecord) Stat(name string) *stats.Statistic {
	for _, s := range r.Stats {
		if s.Name == name {
			return s.Stat
		}
	}
	return nil
}
