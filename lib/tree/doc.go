// Package tree implements the node tree that stores hierarchical statistics.
//
// A tree is addressed by paths of string segments. Every node may hold a
// Value. Values implementing Container derive some of their fields from the
// values of their direct children; those fields are recomputed with
// Aggregate whenever a descendant changes.
//
// Locking:
//
// Each Node has its own mutex that guards its value. Children are kept in a
// concurrent map, so creating paths never locks a parent. After a write the
// aggregates of the ancestors are recomputed bottom-up. Each ancestor first
// snapshots its children's values (locking one child at a time) and then takes
// only its own lock to run Aggregate. No goroutine ever holds two node locks,
// so concurrent updates on different branches cannot deadlock.
//
// Merging:
//
// Merge folds a subtree received from a collector into a local tree. Failures
// of a single Merge or Aggregate call are isolated to that node and reported
// as *MergeFailure; the rest of the tree is still merged.
//
// Serialization:
//
// Codec writes trees as msgpack. Every value is prefixed with the type tag it
// was registered under in the Registry, which is how a receiver rebuilds the
// concrete type before merging.
package tree
