// Package stats summarizes the N samples of one traced value taken from N
// independent runs.
//
// A Statistic is one of three variants:
//   - Array: numeric samples (scalar, dense, masked, sparse or complex),
//     summarized elementwise by mean, population standard deviation and an
//     estimate of significant bits
//   - Empty: non-numeric or missing data; mean, std and sig are NaN
//   - Tuple: a heterogeneous sequence, one Statistic per position
//
// Significant bits are produced by an Estimator. ClosedForm implements
// -log2(|std/mean|); CNH and General implement the Centered Normal
// Hypothesis and the general Bernoulli-style estimators.
package stats
