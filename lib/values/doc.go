// Package values contains the built-in value types of dStats.
//
// Counters is used for leaves, Rollup for inner nodes. A Rollup keeps the
// counters written directly to it apart from the totals of its subtree, so a
// merge never adds up derived totals twice.
package values
