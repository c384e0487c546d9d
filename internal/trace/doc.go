// Package trace defines the raw per-run trace model and its on-disk format.
//
// A run is the event stream produced by one execution of an instrumented
// program. Every logical call contributes two events, an INPUTS event and an
// OUTPUTS event, sharing the same time, module, function and backtrace.
//
// # File Format
//
// Runs are written as JSON Lines, one TraceEvent per line. A run may span
// several files named <run-prefix>.<sequence>.<ext>; the Reader consumes them
// in ascending sequence order. Files ending in ".zst" are zstd-compressed.
//
// Argument values use the tagged Value encoding so that arrays, sparse
// matrices, complex numbers and heterogeneous tuples survive the round trip.
// Non-finite floats are written as the strings "NaN", "Inf" and "-Inf".
package trace
