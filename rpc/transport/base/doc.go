// Package base implements the framed transport shared by the socket based
// transports of the stats RPC system (tcp, unix). Protocol specific parts are
// injected as connectors, everything else lives here.
//
// Frame format (big endian):
//
//	shardID (uint64) | requestID (uint64) | length (uint32) | payload
//
// Key Components:
//
//   - IClientConnector/IServerConnector: dial, listen and tune connections for
//     one network protocol.
//
//   - clientTransport: keeps a pool of connections per endpoint and picks them
//     round robin. Requests are multiplexed over a connection and matched to
//     their responses by request ID. A broken connection fails the requests in
//     flight on it and is skipped until its reader goroutine has redialed.
//
//   - serverTransport: accepts connections and dispatches every frame to the
//     registered handler on a bounded set of workers per connection. Read
//     buffers come from a sync.Pool. Close also drops the open connections.
//
// Payloads above MaxFrameSize are refused on both ends. Both sides are safe
// for concurrent use.
package base
