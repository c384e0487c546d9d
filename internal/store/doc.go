// Package store exports merge results to a SQLite database.
//
// A database holds any number of merge sessions. Each session owns:
//   - records: one row per merged record and argument, with scalar
//     statistics inline
//   - arrays: mean, std and sig of array statistics as dense float64 blobs,
//     keyed by (label, arg, time)
//   - callgraphs: the call graphs built from the merged stream, keyed by
//     emission order
//
// # Ordering
//
// Sessions are ordered by created_seq, a logical counter assigned at
// creation. Records are read back ORDER BY position, arg_index and graphs
// ORDER BY seq, so reading a session twice yields identical results.
//
// # Connection Settings
//
//   - _journal_mode=WAL: readers proceed while a session is written
//   - _synchronous=NORMAL
//   - _busy_timeout=5000: wait up to 5s for a lock
//   - _foreign_keys=on: deleting a session cascades to its rows
package store
