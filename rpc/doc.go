// Package rpc connects dStats collectors and query tools with the masters.
//
// The package is organized into several subpackages:
//
//   - common: the Message protocol, client and server configuration and the
//     logger setup.
//
//   - transport: network transports with pluggable implementations (TCP,
//     Unix sockets, HTTP).
//
//   - serializer: Message serialization (Binary, MsgPack, JSON, GOB).
//
//   - client: RPCRemote, the statsdb.RemoteStatsDB of a collector node.
//
//   - server: hosts one statsdb.Master per shard and dispatches requests to it.
package rpc
