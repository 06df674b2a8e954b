// Package statsdb implements the master and collector databases of dStats.
//
// A Master owns the canonical tree of every root key. A Node (collector)
// buffers updates locally and pushes them to its master with Sync. Both
// persist one record per root key in a store.IStore, so buffered and
// canonical data survive a restart.
//
// Sync Cycle:
//
//  1. The collector drains every dirty root from its buffer into a Sync
//     message with a new id and writes it to its outbox store.
//  2. The message is delivered through a RemoteStatsDB within the configured
//     timeout.
//  3. On AckApplied or AckAlreadyApplied the outbox record is dropped. On any
//     other outcome the drained subtrees are merged back into the buffer.
//
// The master remembers the last accepted id of each host, so a message that
// is delivered twice (e.g. after a crash between delivery and clearing the
// outbox) is only applied once.
//
// Locking:
//
// Each root key has a coarse RWMutex. The master takes it exclusively for
// updates and merges; the collector takes it shared for updates, relying on
// the per-node locks of the tree, and exclusively while draining.
//
// Merge failures of single nodes are logged and counted, the rest of a message
// is still applied and its id accepted.
package statsdb
