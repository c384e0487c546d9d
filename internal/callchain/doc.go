// Package callchain rebuilds call graphs from an ordered event stream.
//
// Events are pushed one at a time. The Builder keeps the events of the
// current top-level invocation until its OUTPUTS event arrives, then turns
// them into a CallGraph and hands it to a Sink.
//
// # Graph Shape
//
//   - HIERARCHICAL edges go from a caller to each direct callee
//   - CAUSAL edges link successive calls made by the same caller
//   - calls repeated back to back from the same origin (id, name and
//     backtrace) collapse into one node carrying a CAUSAL self-loop whose
//     Cycle is the repetition count
//
// A Builder owns mutable state and must be fed by a single stream.
package callchain
