// Package dstore implements store.IStore on a Dragonboat RAFT shard, so the
// tree records of a stats master are replicated to every replica of the shard.
//
// Architecture:
//
//   - Store Client: implements store.IStore. Writes are serialized into
//     internal.Command values and proposed with SyncPropose, reads are
//     internal.Query values executed with SyncRead.
//
//   - State Machine: RecordStateMachine, a Dragonboat IConcurrentStateMachine
//     holding the records in an lstore.Store. Snapshots use the lstore
//     snapshot format.
//
// Consistency:
//
//	All operations are linearizable. A record written by the master through
//	one replica is visible to a master restarted on any other replica, which
//	is how a stats master survives the loss of its host.
//
// Error Handling and Retries:
//
//	When Dragonboat returns ErrSystemBusy the operation is retried after a
//	short delay, up to 5 attempts. Every attempt is bounded by the configured
//	timeout.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	err = nh.StartConcurrentReplica(members, false, dstore.CreateStateMachineFactory(), shardConfig)
//	if err != nil { ... }
//
//	records := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//
// The NodeHost is shared by all shards of a process and owned by the caller.
package dstore
