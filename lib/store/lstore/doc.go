// Package lstore implements a local, single-node record store based on the
// store.IStore interface. Records live in a concurrent map
// (xsync.MapOf) and can optionally be persisted to a snapshot file.
//
// Key Features:
//   - Lock-free reads and writes through xsync.MapOf
//   - Optional snapshot persistence: loaded at open, flushed periodically when
//     the store changed, and flushed on Close
//   - Stream Save/Load, used by the dstore state machine for raft snapshots
//
// Implementation Details:
//
//   - Write Index: every write increments an atomic index. The periodic
//     snapshot only runs if the index moved since the last snapshot.
//
//   - Crash Safety: snapshots are written to "<path>.tmp", fsynced and renamed,
//     so a crash never leaves a truncated snapshot behind. Writes after the last
//     snapshot are lost on a crash; use bstore where every write must be durable.
//
// Usage Example:
//
//	st, err := lstore.NewLocalStore(lstore.Options{Path: "/var/lib/dstats/master.snap"})
//	if err != nil { ... }
//	defer st.Close()
//
//	err = st.Set("campaign-1", record)
//	value, exists, err := st.Get("campaign-1")
package lstore
