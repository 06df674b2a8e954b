// Package tcp implements the TCP socket transport of the stats RPC system. It
// provides the TCP specific connectors for the base package, which does the
// framing, connection pooling and request routing.
//
// Key Components:
//
//   - clientConnector: dials TCP endpoints and applies NoDelay and keep-alive
//
//   - serverConnector: listens on a TCP address and tunes accepted connections
//     (NoDelay, socket buffers, keep-alive, linger)
//
// The default server buffer size is 512 KB. Sync messages carry whole subtrees,
// so they are usually larger than the lookups of the read path.
package tcp
