// Package internal provides the command and query structures of the dstore
// state machine together with the binary encoding of commands.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
//   - Command System: write operations (Set, Delete) on records. Commands are
//     serialized, proposed to the RAFT shard and applied by every replica.
//
//   - Query System: read operations (Get, Has, Keys). Queries are executed
//     locally on the state machine and therefore do not require serialization.
//
// Command Format:
//
//	- 1 byte: Command type (Set, Delete)
//	- 4 bytes: Key length (uint32, big endian)
//	- N bytes: Key data (the root key of a stats tree)
//	- M bytes: Value data (the encoded tree record, only present for Set)
package internal
