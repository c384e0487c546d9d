// Package merge aligns the events of N runs position by position and
// reduces every aligned tuple to one MergedRecord carrying per-argument
// statistics.
//
// # Alignment
//
// The k-th event of every run is pulled in lockstep. Module, function and
// label must agree across runs; a disagreement, or differing argument names,
// is a MergeError and ends the merge. Differing backtraces are logged as a
// determinism warning and counted in the Summary. Event ids are run-local and
// never compared.
//
// Merging stops as soon as one run is exhausted; the remaining events of the
// other runs are discarded and reported.
//
// # Batching
//
// Next returns up to BatchSize records at a time. In online mode every
// record is returned as soon as it is merged.
package merge
