// Package schema defines the KeySchema of a stats database: the ordered names
// of the levels of the tree, e.g. [campaign, creative, day].
//
// A path into the tree is a slice of key segments, one per level starting at
// the root. The schema decides which paths are legal:
//
//   - Validate: exactly Depth segments (a leaf)
//   - ValidatePath: 1 to Depth segments (any node, used by update and get)
//   - ValidateQuery: 0 to Depth segments (a children query prefix)
//
// Violations wrap ErrSchemaMismatch and are never retried.
package schema
